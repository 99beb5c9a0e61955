package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/pixelmint/backend/internal/models"
)

// maxWebhookBody caps the payment provider payload.
const maxWebhookBody = 1 << 20

// JobInserter enqueues background jobs. Satisfied by *river.Client.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

type webhookEvent struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
	Credits   int    `json:"credits"`
}

// WebhookHandler receives payment provider callbacks and enqueues
// credit grants. The grant itself happens in the River worker so a
// provider retry storm never double-credits and a transient DB error
// gets the queue's retry policy instead of a lost payment.
type WebhookHandler struct {
	Jobs   JobInserter
	Secret string
	Logger *slog.Logger
}

// HandleWebhook handles POST /api/v1/billing/webhook.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	if !verifySignature(h.Secret, body, r.Header.Get("X-Webhook-Signature")) {
		h.Logger.Warn("webhook signature mismatch")
		http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment.completed", "subscription.renewed":
	default:
		// Unhandled event types are acknowledged so the provider
		// stops retrying them.
		w.WriteHeader(http.StatusOK)
		return
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil || event.Reference == "" || event.Credits <= 0 {
		http.Error(w, `{"error":"invalid event payload"}`, http.StatusBadRequest)
		return
	}

	kind := models.CreditKindPurchase
	if event.Type == "subscription.renewed" {
		kind = models.CreditKindBonus
	}

	_, err = h.Jobs.Insert(r.Context(), GrantCreditsArgs{
		UserID:    userID,
		Amount:    event.Credits,
		GrantKind: kind,
		Reference: event.Reference,
	}, nil)
	if err != nil {
		h.Logger.Error("enqueue credit grant failed", "reference", event.Reference, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	h.Logger.Info("credit grant enqueued", "user_id", userID, "credits", event.Credits, "reference", event.Reference)
	w.WriteHeader(http.StatusAccepted)
}

func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
