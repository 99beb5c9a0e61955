package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type fakeInserter struct {
	mu       sync.Mutex
	inserted []river.JobArgs
	err      error
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inserted = append(f.inserted, args)
	return &rivertype.JobInsertResult{}, nil
}

func (f *fakeInserter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

const testSecret = "webhook-test-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookHandler(jobs *fakeInserter) *WebhookHandler {
	return &WebhookHandler{
		Jobs:   jobs,
		Secret: testSecret,
		Logger: slog.New(slog.DiscardHandler),
	}
}

func postWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func TestWebhook_PaymentCompleted(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	userID := uuid.New()
	body := `{"type":"payment.completed","reference":"pay_123","user_id":"` + userID.String() + `","credits":50}`
	rec := postWebhook(h, body, sign(body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if jobs.count() != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", jobs.count())
	}
	args, ok := jobs.inserted[0].(GrantCreditsArgs)
	if !ok {
		t.Fatalf("unexpected args type %T", jobs.inserted[0])
	}
	if args.UserID != userID || args.Amount != 50 || args.GrantKind != "purchase" || args.Reference != "pay_123" {
		t.Errorf("unexpected args: %+v", args)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	body := `{"type":"payment.completed","reference":"pay_123","user_id":"` + uuid.NewString() + `","credits":50}`
	rec := postWebhook(h, body, "deadbeef")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if jobs.count() != 0 {
		t.Errorf("nothing should be enqueued, got %d", jobs.count())
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	rec := postWebhook(h, `{}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	body := `{"type":"invoice.created","reference":"inv_1","user_id":"` + uuid.NewString() + `","credits":10}`
	rec := postWebhook(h, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if jobs.count() != 0 {
		t.Errorf("unknown event must not enqueue, got %d", jobs.count())
	}
}

func TestWebhook_InvalidPayload(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	body := `{"type":"payment.completed","reference":"","user_id":"not-a-uuid","credits":0}`
	rec := postWebhook(h, body, sign(body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhook_SubscriptionRenewalIsBonus(t *testing.T) {
	jobs := &fakeInserter{}
	h := newWebhookHandler(jobs)

	body := `{"type":"subscription.renewed","reference":"sub_9","user_id":"` + uuid.NewString() + `","credits":100}`
	rec := postWebhook(h, body, sign(body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	args := jobs.inserted[0].(GrantCreditsArgs)
	if args.GrantKind != "bonus" {
		t.Errorf("expected bonus kind, got %s", args.GrantKind)
	}
}
