package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixelmint/backend/internal/storage"
)

// scriptedProvider returns canned answers and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	createReq TaskRequest
	createErr error
	pollErr   error
	resultURL string
}

func (p *scriptedProvider) CreateTask(_ context.Context, req TaskRequest) (string, error) {
	p.mu.Lock()
	p.createReq = req
	p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	return "task-9", nil
}

func (p *scriptedProvider) PollForCompletion(context.Context, string, time.Duration, time.Duration) (*TaskResult, error) {
	if p.pollErr != nil {
		return nil, p.pollErr
	}
	return &TaskResult{TaskID: "task-9", ResultURLs: []string{p.resultURL}}, nil
}

func resultServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunner_InlineSmallInput(t *testing.T) {
	srv := resultServer(t, []byte("png-bytes"))
	p := &scriptedProvider{resultURL: srv.URL}
	store := storage.NewMemoryStore()
	r := NewRunner(p, store, RunnerConfig{InlineLimit: 1024}, nil)

	out, err := r.Run(context.Background(), Job{
		Model:     "flux-kontext",
		Prompt:    "a sticker",
		ImageData: []byte("small"),
		Folder:    "generated/sticker",
	})
	if err != nil {
		t.Fatal(err)
	}

	if p.createReq.ImageBase64 == "" || p.createReq.ImageURL != "" {
		t.Errorf("small input should travel inline: %+v", p.createReq)
	}
	if out.SizeBytes != int64(len("png-bytes")) {
		t.Errorf("SizeBytes = %d", out.SizeBytes)
	}
	if got := store.Object(out.StorageKey); !bytes.Equal(got, []byte("png-bytes")) {
		t.Errorf("stored bytes = %q", got)
	}
	if !strings.HasPrefix(out.StorageKey, "generated/sticker/") {
		t.Errorf("storage key %q not under job folder", out.StorageKey)
	}
}

func TestRunner_OversizedInputStagedByURL(t *testing.T) {
	srv := resultServer(t, []byte("png-bytes"))
	p := &scriptedProvider{resultURL: srv.URL}
	store := storage.NewMemoryStore()
	r := NewRunner(p, store, RunnerConfig{InlineLimit: 8}, nil)

	big := bytes.Repeat([]byte("x"), 64)
	if _, err := r.Run(context.Background(), Job{ImageData: big, Folder: "generated/bg"}); err != nil {
		t.Fatal(err)
	}

	if p.createReq.ImageURL == "" || p.createReq.ImageBase64 != "" {
		t.Errorf("oversized input should be staged and passed by URL: %+v", p.createReq)
	}
	// Both the staged input and the final result are in the store.
	if store.Len() != 2 {
		t.Errorf("stored objects = %d, want 2", store.Len())
	}
}

func TestRunner_PostProcessApplied(t *testing.T) {
	srv := resultServer(t, []byte("raw"))
	p := &scriptedProvider{resultURL: srv.URL}
	store := storage.NewMemoryStore()
	r := NewRunner(p, store, RunnerConfig{}, nil)

	out, err := r.Run(context.Background(), Job{
		ImageData: []byte("in"),
		Folder:    "generated",
		PostProcess: func(data []byte) ([]byte, error) {
			return append(data, []byte("+wm")...), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Object(out.StorageKey); string(got) != "raw+wm" {
		t.Errorf("stored bytes = %q, want post-processed", got)
	}
}

func TestRunner_PostProcessFailureKeepsOriginal(t *testing.T) {
	srv := resultServer(t, []byte("raw"))
	p := &scriptedProvider{resultURL: srv.URL}
	store := storage.NewMemoryStore()
	r := NewRunner(p, store, RunnerConfig{}, nil)

	out, err := r.Run(context.Background(), Job{
		ImageData:   []byte("in"),
		Folder:      "generated",
		PostProcess: func([]byte) ([]byte, error) { return nil, fmt.Errorf("font missing") },
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Object(out.StorageKey); string(got) != "raw" {
		t.Errorf("stored bytes = %q, want original", got)
	}
}

func TestRunner_ProviderErrorsPropagate(t *testing.T) {
	store := storage.NewMemoryStore()

	r := NewRunner(&scriptedProvider{createErr: ErrUnavailable}, store, RunnerConfig{}, nil)
	if _, err := r.Run(context.Background(), Job{ImageData: []byte("x")}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("create error: %v", err)
	}

	r = NewRunner(&scriptedProvider{pollErr: ErrTimeout}, store, RunnerConfig{}, nil)
	if _, err := r.Run(context.Background(), Job{ImageData: []byte("x")}); !errors.Is(err, ErrTimeout) {
		t.Errorf("poll error: %v", err)
	}
	if store.Len() != 0 {
		t.Error("no result may be persisted for a failed job")
	}
}
