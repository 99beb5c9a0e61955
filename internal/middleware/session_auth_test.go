package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/models"
)

type fakeValidator struct {
	userID uuid.UUID
	err    error
}

func (f *fakeValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, error) {
	return f.userID, f.err
}

type fakeUserLookup struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (f *fakeUserLookup) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

// auth200 proves the middleware let the request through and the user
// made it into context.
func auth200(t *testing.T, want uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil || u.ID != want {
			t.Errorf("expected user %s in context, got %v", want, u)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuth_ValidToken(t *testing.T) {
	id := uuid.New()
	validator := &fakeValidator{userID: id}
	lookup := &fakeUserLookup{users: map[uuid.UUID]*models.User{
		id: {ID: id, Email: "a@example.com", Credits: 10},
	}}

	handler := SessionAuth(validator, lookup)(auth200(t, id))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSessionAuth_MissingHeader(t *testing.T) {
	handler := SessionAuth(&fakeValidator{}, &fakeUserLookup{})(auth200(t, uuid.Nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionAuth_InvalidToken(t *testing.T) {
	validator := &fakeValidator{err: errors.New("token expired")}
	handler := SessionAuth(validator, &fakeUserLookup{})(auth200(t, uuid.Nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer stale.jwt.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionAuth_UnknownUser(t *testing.T) {
	validator := &fakeValidator{userID: uuid.New()}
	lookup := &fakeUserLookup{users: map[uuid.UUID]*models.User{}}
	handler := SessionAuth(validator, lookup)(auth200(t, uuid.Nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer valid.but.orphaned")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
