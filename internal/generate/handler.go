package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pixelmint/backend/internal/middleware"
)

// MaxUploadBytes caps the decoded request body. Larger uploads are
// rejected before any billing or provider work happens.
const MaxUploadBytes = 30 << 20

// Handler serves the /api/v1/tools endpoints. Each tool shares the
// Service workflow and differs only in model and prompt construction.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

type generateRequest struct {
	ImageBase64 string `json:"image_base64"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// GenerateBackground handles POST /api/v1/tools/background/generate.
func (h *Handler) GenerateBackground(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "background", "google/nano-banana-edit", func(req generateRequest) string {
		if req.Prompt == "" {
			return "Replace the background of this image with a clean, professional studio backdrop."
		}
		return "Replace the background of this image: " + req.Prompt
	})
}

// GenerateSticker handles POST /api/v1/tools/sticker/generate.
func (h *Handler) GenerateSticker(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "sticker", "google/nano-banana-edit", func(req generateRequest) string {
		return "Turn the subject of this image into a die-cut sticker with a thick white border and transparent-style background."
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, tool, model string, buildPrompt func(generateRequest) string) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeToolError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeToolError(w, http.StatusRequestEntityTooLarge, "image too large", "")
			return
		}
		writeToolError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	if req.ImageBase64 == "" {
		writeToolError(w, http.StatusBadRequest, "image_base64 is required", "")
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(stripDataURL(req.ImageBase64))
	if err != nil {
		writeToolError(w, http.StatusBadRequest, "image_base64 is not valid base64", "")
		return
	}

	// The workflow must finish even if the client hangs up mid-request:
	// credits are already in motion once it starts.
	ctx := context.WithoutCancel(r.Context())

	payload, genErr := h.Service.Generate(ctx, Request{
		UserID:           user.ID,
		Subscribed:       user.Subscribed,
		Tool:             tool,
		Model:            model,
		Prompt:           buildPrompt(req),
		ImageData:        imageData,
		AspectRatio:      req.AspectRatio,
		IdempotencyToken: r.Header.Get("Idempotency-Key"),
	})
	if genErr != nil {
		writeToolError(w, genErr.HTTPStatus(), genErr.Message, genErr.Details)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// stripDataURL drops a leading "data:image/png;base64," style prefix.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func writeToolError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" {
		body["details"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
