package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/storage"
)

// DefaultInlineLimit is the input size above which the image is staged
// in the object store and passed by URL instead of inline base64.
// Inline saves a round trip for small payloads; the threshold keeps
// create requests under the provider's body size limit.
const DefaultInlineLimit = 1 << 20 // 1 MiB

// PostProcessor transforms downloaded result bytes before they are
// persisted, e.g. a watermark for non-subscribed accounts.
type PostProcessor func(data []byte) ([]byte, error)

// Job is one generation run: the task request plus how to persist its
// output.
type Job struct {
	Model       string
	Prompt      string
	ImageData   []byte
	AspectRatio string
	Folder      string
	PostProcess PostProcessor
}

// Output is the stable reference produced for a finished job.
type Output struct {
	URL        string
	StorageKey string
	SizeBytes  int64
}

// Runner drives one job end to end: stage input, create the remote
// task, poll to a terminal state, download the result, post-process,
// and persist it.
type Runner struct {
	provider     Provider
	store        storage.ObjectStore
	httpc        *http.Client
	log          *slog.Logger
	inlineLimit  int
	pollTimeout  time.Duration
	pollInterval time.Duration
}

type RunnerConfig struct {
	InlineLimit  int
	PollTimeout  time.Duration
	PollInterval time.Duration
}

func NewRunner(p Provider, store storage.ObjectStore, cfg RunnerConfig, log *slog.Logger) *Runner {
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = DefaultInlineLimit
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		provider:     p,
		store:        store,
		httpc:        &http.Client{Timeout: 60 * time.Second},
		log:          log,
		inlineLimit:  cfg.InlineLimit,
		pollTimeout:  cfg.PollTimeout,
		pollInterval: cfg.PollInterval,
	}
}

func (r *Runner) Run(ctx context.Context, job Job) (*Output, error) {
	req := TaskRequest{
		Model:       job.Model,
		Prompt:      job.Prompt,
		AspectRatio: job.AspectRatio,
	}

	if len(job.ImageData) <= r.inlineLimit {
		req.ImageBase64 = base64.StdEncoding.EncodeToString(job.ImageData)
	} else {
		staged, err := r.store.Upload(ctx, job.ImageData, uuid.NewString()+".png", "image/png", strings.Trim(job.Folder, "/")+"/inputs")
		if err != nil {
			return nil, fmt.Errorf("stage oversized input: %w", err)
		}
		req.ImageURL = staged.URL
	}

	taskID, err := r.provider.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}
	r.log.Info("generation task created", "task_id", taskID, "model", job.Model, "inline_input", req.ImageURL == "")

	result, err := r.provider.PollForCompletion(ctx, taskID, r.pollTimeout, r.pollInterval)
	if err != nil {
		return nil, err
	}

	data, err := r.download(ctx, result.ResultURLs[0])
	if err != nil {
		return nil, err
	}

	if job.PostProcess != nil {
		processed, err := job.PostProcess(data)
		if err != nil {
			// A paid-for result beats a perfect one; keep the original.
			r.log.Warn("post-processing failed, persisting original", "task_id", taskID, "error", err)
		} else {
			data = processed
		}
	}

	stored, err := r.store.Upload(ctx, data, uuid.NewString()+".png", "image/png", job.Folder)
	if err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}
	return &Output{URL: stored.URL, StorageKey: stored.Key, SizeBytes: int64(len(data))}, nil
}

func (r *Runner) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download result: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: result download status %d", ErrUnavailable, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
