package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/middleware"
	"github.com/pixelmint/backend/internal/models"
	"github.com/pixelmint/backend/internal/storage"
)

// CreditReader is the ledger subset the dashboard needs.
type CreditReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]*models.CreditTransaction, error)
}

// AssetReader is the asset repository subset the dashboard needs.
type AssetReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Asset, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserWriter updates account settings.
type UserWriter interface {
	SetDailyCreditCap(ctx context.Context, id uuid.UUID, cap *int) error
}

// ObjectFetcher reads stored artifact bytes for signed downloads.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type Handler struct {
	credits CreditReader
	assets  AssetReader
	users   UserWriter
	objects ObjectFetcher
	signer  *storage.URLSigner
	log     *slog.Logger
}

func NewHandler(credits CreditReader, assets AssetReader, users UserWriter, objects ObjectFetcher, signer *storage.URLSigner, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{credits: credits, assets: assets, users: users, objects: objects, signer: signer, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":               user.ID,
		"email":            user.Email,
		"display_name":     user.DisplayName,
		"credits":          user.Credits,
		"subscribed":       user.Subscribed,
		"daily_credit_cap": user.DailyCreditCap,
		"created_at":       user.CreatedAt,
	})
}

// PATCH /api/v1/account/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var body struct {
		DailyCreditCap *int `json:"daily_credit_cap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if body.DailyCreditCap != nil && *body.DailyCreditCap < 0 {
		http.Error(w, `{"error":"daily_credit_cap must be >= 0"}`, http.StatusBadRequest)
		return
	}
	if err := h.users.SetDailyCreditCap(r.Context(), user.ID, body.DailyCreditCap); err != nil {
		h.log.Error("update settings failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/credits
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.credits.Balance(r.Context(), user.ID)
	if err != nil {
		h.log.Error("get balance failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

// GET /api/v1/credits/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	txs, err := h.credits.Transactions(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list transactions failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// GET /api/v1/assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.assets.ListByOwner(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.log.Error("list assets failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Asset{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/assets/{id}
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractAssetID(r)
	if !ok {
		http.Error(w, `{"error":"invalid asset id"}`, http.StatusBadRequest)
		return
	}
	asset, err := h.assets.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"asset not found"}`, http.StatusNotFound)
		return
	}
	if asset.OwnerID != user.ID {
		// Hide existence from non-owners.
		http.Error(w, `{"error":"asset not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// DELETE /api/v1/assets/{id}
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractAssetID(r)
	if !ok {
		http.Error(w, `{"error":"invalid asset id"}`, http.StatusBadRequest)
		return
	}
	asset, err := h.assets.GetByID(r.Context(), id)
	if err != nil || asset.OwnerID != user.ID {
		http.Error(w, `{"error":"asset not found"}`, http.StatusNotFound)
		return
	}
	if err := h.assets.Delete(r.Context(), id); err != nil {
		h.log.Error("delete asset failed", "asset_id", id, "error", err)
		http.Error(w, `{"error":"delete failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /api/v1/assets/download?token=...
// The token is an HMAC-signed asset reference, so this route needs no
// session: the signature is the authorization.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusBadRequest)
		return
	}
	assetIDStr, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusForbidden)
		return
	}
	assetID, err := uuid.Parse(assetIDStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusForbidden)
		return
	}
	asset, err := h.assets.GetByID(r.Context(), assetID)
	if err != nil {
		http.Error(w, `{"error":"asset not found"}`, http.StatusNotFound)
		return
	}
	data, err := h.objects.Fetch(r.Context(), asset.StorageKey)
	if err != nil {
		h.log.Error("fetch asset object failed", "asset_id", asset.ID, "key", asset.StorageKey, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+asset.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// extractAssetID parses the asset UUID from /api/v1/assets/{id}.
func extractAssetID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/assets/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
