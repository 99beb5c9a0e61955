package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/idempotency"
	"github.com/pixelmint/backend/internal/ledger"
	"github.com/pixelmint/backend/internal/models"
	"github.com/pixelmint/backend/internal/provider"
	"github.com/pixelmint/backend/internal/ratelimit"
	"github.com/pixelmint/backend/internal/storage"
	"github.com/pixelmint/backend/internal/watermark"
)

// JobRunner drives one provider job end to end. Satisfied by
// provider.Runner.
type JobRunner interface {
	Run(ctx context.Context, job provider.Job) (*provider.Output, error)
}

// AssetStore persists finished artifacts.
type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
}

// Config holds the workflow knobs shared by every visual tool.
type Config struct {
	CreditsPerImage int
	RateLimit       int
	RateWindow      time.Duration
	WatermarkText   string
	DownloadTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.CreditsPerImage <= 0 {
		c.CreditsPerImage = 1
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.DownloadTTL <= 0 {
		c.DownloadTTL = time.Hour
	}
	return c
}

// Request is one validated generation attempt entering the workflow.
type Request struct {
	UserID           uuid.UUID
	Subscribed       bool
	Tool             string
	Model            string
	Prompt           string
	ImageData        []byte
	AspectRatio      string
	IdempotencyToken string
}

// Response is the success payload. It is marshaled exactly once and
// cached, so an idempotent replay returns byte-identical bytes.
type Response struct {
	Success          bool   `json:"success"`
	AssetID          string `json:"asset_id"`
	DownloadURL      string `json:"download_url"`
	ViewURL          string `json:"view_url"`
	CreditsUsed      int    `json:"credits_used"`
	RemainingCredits int    `json:"remaining_credits"`
}

// Service sequences idempotency, rate limiting, credit reservation, the
// provider job, and asset persistence into one atomic-looking outcome:
// the user is charged exactly when an artifact exists, and an identical
// retry never runs the job twice.
type Service struct {
	ledger  ledger.Service
	idem    idempotency.Store
	limiter ratelimit.Limiter
	runner  JobRunner
	assets  AssetStore
	signer  *storage.URLSigner
	log     *slog.Logger
	cfg     Config
}

func NewService(l ledger.Service, idem idempotency.Store, limiter ratelimit.Limiter, runner JobRunner, assets AssetStore, signer *storage.URLSigner, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:  l,
		idem:    idem,
		limiter: limiter,
		runner:  runner,
		assets:  assets,
		signer:  signer,
		log:     log,
		cfg:     cfg.withDefaults(),
	}
}

// Generate runs the workflow. The returned bytes are the response body
// to write verbatim; on replay of a completed key they are the cached
// bytes from the first run.
//
// Ordering: cached-success replay -> duplicate check -> rate limit ->
// pending mark (atomic insert-if-absent) -> credit reservation ->
// provider job -> asset insert -> success cache. The pending mark comes
// before the reservation so two requests racing on one key cannot both
// reach the ledger; a reservation rejection clears the mark, leaving
// the key retryable.
func (s *Service) Generate(ctx context.Context, req Request) ([]byte, *Error) {
	if len(req.ImageData) == 0 {
		return nil, errValidation("image input is required")
	}
	if req.Tool == "" || req.Model == "" {
		return nil, errValidation("tool and model are required")
	}

	idemKey := ""
	if req.IdempotencyToken != "" {
		idemKey = idempotency.MakeKey("generate:"+req.Tool, req.UserID.String(), req.IdempotencyToken)

		entry, err := s.idem.Get(ctx, idemKey)
		if err != nil {
			return nil, errInternal("idempotency lookup failed")
		}
		if entry != nil {
			switch entry.Status {
			case idempotency.StatusSuccess:
				return entry.Response, nil
			case idempotency.StatusPending:
				return nil, &Error{Kind: KindDuplicate, Message: "request with this idempotency key is already in flight"}
			}
		}
	}

	decision, err := s.limiter.Check(ctx, ratelimit.Key(req.Tool, req.UserID.String()), s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		return nil, errInternal("rate limiter failed")
	}
	if !decision.Allowed {
		return nil, &Error{
			Kind:    KindRateLimited,
			Message: "too many requests",
			Details: fmt.Sprintf("retry after %ds", int(decision.RetryAfter.Seconds())),
		}
	}

	if idemKey != "" {
		if err := s.idem.SetPending(ctx, idemKey); err != nil {
			if errors.Is(err, idempotency.ErrDuplicate) {
				return nil, &Error{Kind: KindDuplicate, Message: "request with this idempotency key is already in flight"}
			}
			return nil, errInternal("idempotency mark failed")
		}
	}

	deduct, err := s.ledger.Deduct(ctx, req.UserID, s.cfg.CreditsPerImage, "generation: "+req.Tool)
	if err != nil {
		s.clearKey(ctx, idemKey)
		s.log.Error("credit deduction errored", "user_id", req.UserID, "tool", req.Tool, "error", err)
		return nil, errInternal("credit check failed")
	}
	if !deduct.Deducted {
		s.clearKey(ctx, idemKey)
		return nil, &Error{
			Kind:    KindInsufficientCredits,
			Message: "insufficient credits",
			Details: fmt.Sprintf("required %d, current %d", s.cfg.CreditsPerImage, deduct.Balance),
		}
	}

	// Credits are reserved. Every failure past this point funnels
	// through reconcile: refund, clear the key, log, sanitize.
	job := provider.Job{
		Model:       req.Model,
		Prompt:      req.Prompt,
		ImageData:   req.ImageData,
		AspectRatio: req.AspectRatio,
		Folder:      "generated/" + req.Tool,
	}
	if !req.Subscribed && s.cfg.WatermarkText != "" {
		job.PostProcess = func(data []byte) ([]byte, error) {
			return watermark.Apply(data, s.cfg.WatermarkText, watermark.DefaultOptions())
		}
	}

	output, err := s.runner.Run(ctx, job)
	if err != nil {
		return nil, s.reconcile(ctx, req, idemKey, "provider job failed", err)
	}

	asset := &models.Asset{
		ID:          uuid.New(),
		StorageKey:  output.StorageKey,
		Filename:    filenameFromKey(output.StorageKey),
		ContentType: "image/png",
		SizeBytes:   output.SizeBytes,
		OwnerID:     req.UserID,
		Metadata:    assetMetadata(req),
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, s.reconcile(ctx, req, idemKey, "asset record failed", err)
	}

	token := s.signer.Sign(asset.ID.String(), s.cfg.DownloadTTL)
	payload, err := json.Marshal(Response{
		Success:          true,
		AssetID:          asset.ID.String(),
		DownloadURL:      "/api/v1/assets/download?token=" + token,
		ViewURL:          output.URL,
		CreditsUsed:      s.cfg.CreditsPerImage,
		RemainingCredits: deduct.Balance,
	})
	if err != nil {
		return nil, s.reconcile(ctx, req, idemKey, "response encoding failed", err)
	}

	if idemKey != "" {
		if err := s.idem.SetSuccess(ctx, idemKey, payload); err != nil {
			// The job is committed; a failed cache write only weakens
			// replay, it must not fail the request.
			s.log.Warn("idempotency success cache failed", "key", idemKey, "error", err)
		}
	}

	s.log.Info("generation finalized",
		"user_id", req.UserID,
		"tool", req.Tool,
		"asset_id", asset.ID,
		"credits_used", s.cfg.CreditsPerImage,
		"remaining", deduct.Balance,
	)
	return payload, nil
}

// reconcile is the single failure funnel after a successful credit
// reservation: refund the reservation, clear the idempotency key, write
// a structured failure record, and map the cause to a sanitized error.
func (s *Service) reconcile(ctx context.Context, req Request, idemKey, stage string, cause error) *Error {
	if _, err := s.ledger.Refund(ctx, req.UserID, s.cfg.CreditsPerImage, "generation refund: "+req.Tool); err != nil {
		// Real financial loss: the user paid and got nothing back.
		s.log.Error("REFUND FAILED after generation failure",
			"user_id", req.UserID,
			"tool", req.Tool,
			"amount", s.cfg.CreditsPerImage,
			"stage", stage,
			"cause", cause,
			"refund_error", err,
		)
	} else {
		s.log.Info("generation refunded", "user_id", req.UserID, "tool", req.Tool, "amount", s.cfg.CreditsPerImage)
	}
	s.clearKey(ctx, idemKey)

	s.log.Error("generation failed",
		"user_id", req.UserID,
		"tool", req.Tool,
		"stage", stage,
		"error", cause,
	)

	var failed *provider.FailedError
	switch {
	case errors.Is(cause, provider.ErrTimeout):
		return &Error{Kind: KindProviderTimeout, Message: "generation timed out, please retry"}
	case errors.Is(cause, provider.ErrUnavailable):
		return &Error{Kind: KindProviderUnavailable, Message: "generation service temporarily unavailable"}
	case errors.As(cause, &failed):
		return errInternal("generation failed")
	default:
		return errInternal("generation failed")
	}
}

func (s *Service) clearKey(ctx context.Context, idemKey string) {
	if idemKey == "" {
		return
	}
	if err := s.idem.Clear(ctx, idemKey); err != nil {
		s.log.Warn("idempotency clear failed", "key", idemKey, "error", err)
	}
}

func assetMetadata(req Request) json.RawMessage {
	meta, _ := json.Marshal(map[string]any{
		"source":      req.Tool,
		"model":       req.Model,
		"watermarked": !req.Subscribed,
	})
	return meta
}

func filenameFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
