package generate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pixelmint/backend/internal/middleware"
	"github.com/pixelmint/backend/internal/models"
)

func toolRequest(t *testing.T, f *fixture, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/background/generate", strings.NewReader(body))
	user := &models.User{ID: f.userID, Subscribed: true}
	return req.WithContext(middleware.WithUser(req.Context(), user))
}

func encodedImage() string {
	return base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
}

func TestHandler_Background(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	body := `{"image_base64":"` + encodedImage() + `","prompt":"beach at sunset"}`
	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, toolRequest(t, f, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.CreditsUsed != 5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_DataURLPrefix(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	body := `{"image_base64":"data:image/png;base64,` + encodedImage() + `"}`
	rec := httptest.NewRecorder()
	h.GenerateSticker(rec, toolRequest(t, f, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/background/generate", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_BadBase64(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, toolRequest(t, f, `{"image_base64":"%%% not base64 %%%"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_MissingImage(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, toolRequest(t, f, `{"prompt":"no image"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_PayloadTooLarge(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	huge := bytes.Repeat([]byte("A"), MaxUploadBytes+1024)
	body := `{"image_base64":"` + string(huge) + `"}`
	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, toolRequest(t, f, body))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandler_InsufficientCreditsStatus(t *testing.T) {
	f := newFixture(t, 2)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	body := `{"image_base64":"` + encodedImage() + `"}`
	rec := httptest.NewRecorder()
	h.GenerateBackground(rec, toolRequest(t, f, body))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "insufficient credits") {
		t.Errorf("expected error body, got: %s", rec.Body.String())
	}
}

func TestHandler_IdempotencyHeader(t *testing.T) {
	f := newFixture(t, 10)
	h := &Handler{Service: f.svc, Logger: slog.New(slog.DiscardHandler)}

	body := `{"image_base64":"` + encodedImage() + `"}`

	first := httptest.NewRecorder()
	req1 := toolRequest(t, f, body)
	req1.Header.Set("Idempotency-Key", "hdr-tok")
	h.GenerateBackground(first, req1)

	second := httptest.NewRecorder()
	req2 := toolRequest(t, f, body)
	req2.Header.Set("Idempotency-Key", "hdr-tok")
	h.GenerateBackground(second, req2)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both 200, got %d / %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if f.runner.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", f.runner.callCount())
	}
}
