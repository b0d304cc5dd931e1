package learnapi

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/resilience"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

func newTestClient(t *testing.T, srv *httptest.Server, cfg ClientConfig) *Client {
	t.Helper()
	cfg.HTTPClient = srv.Client()
	cfg.BaseURL = srv.URL
	return NewClient(cfg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.NewEncoder(w).Encode(payload)
}

func TestClientListReference_SendsPagingWithoutAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/countries" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("unexpected limit: %s", got)
		}
		if got := r.URL.Query().Get("offset"); got != "0" {
			t.Errorf("unexpected offset: %s", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("reference lists must not carry auth")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": 31, "name": "Canada", "code": "CA"},
				{"id": 32, "name": "Japan"},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{})
	items, err := client.GetCountries(t.Context(), 100, 0)
	if err != nil {
		t.Fatalf("list countries: %v", err)
	}
	if len(items) != 2 || items[0] != (onboarding.Option{ID: 31, Name: "Canada"}) {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestClientListReference_UnsuccessfulEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "maintenance"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{})
	if _, err := client.GetGoals(t.Context(), 10, 0); err == nil {
		t.Fatalf("expected error for unsuccessful envelope")
	}
}

func TestClientListReference_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": 1, "name": "Spanish"}}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{MaxRetries: 1})
	items, err := client.GetLanguages(t.Context(), 10, 0)
	if err != nil {
		t.Fatalf("list languages: %v", err)
	}
	if len(items) != 1 || calls.Load() != 2 {
		t.Fatalf("expected one retry, calls=%d items=%+v", calls.Load(), items)
	}
}

func TestClientUpdateUserDetails_SendsBearerPatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/users/me" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("unexpected authorization: %s", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"countryId":31}` {
			t.Errorf("unexpected body: %s", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "updated"})
	}))
	defer srv.Close()

	id := int64(31)
	gateway := newTestClient(t, srv, ClientConfig{}).ForUser(usecase.UserCredentials{UserID: "u1", AccessToken: "token-abc"})
	if err := gateway.UpdateUserDetails(t.Context(), onboarding.UserDetailsPatch{CountryID: &id}); err != nil {
		t.Fatalf("update user details: %v", err)
	}
}

func TestClientUpdateUserDetails_WritesAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false})
	}))
	defer srv.Close()

	gender := "MALE"
	client := newTestClient(t, srv, ClientConfig{MaxRetries: 3})
	err := client.UpdateUserDetails(t.Context(), "token-abc", onboarding.UserDetailsPatch{Gender: &gender})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClientDeliverUserDetails_UsesServiceKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-admin-key"); got != "service-secret" {
			t.Errorf("unexpected x-admin-key: %s", got)
		}
		if got := r.Header.Get("x-user-id"); got != "user-9" {
			t.Errorf("unexpected x-user-id: %s", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("replays must not carry a bearer token")
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "invalid budget"})
	}))
	defer srv.Close()

	budget := int64(51)
	client := newTestClient(t, srv, ClientConfig{ServiceKey: "service-secret"})
	err := client.DeliverUserDetails(t.Context(), "user-9", onboarding.UserDetailsPatch{BudgetID: &budget})
	if err == nil || IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestClientVerifyAccessToken_CachesPrincipal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": 42, "email": "a@b.test"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{TokenCacheTTL: time.Minute})
	for range 2 {
		principal, err := client.VerifyAccessToken(t.Context(), "good")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if principal.UserID != "42" || principal.Email != "a@b.test" {
			t.Fatalf("unexpected principal: %+v", principal)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cached principal, calls=%d", calls.Load())
	}

	if _, err := client.VerifyAccessToken(t.Context(), "bad"); !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_CircuitOpensOnTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	}})

	if _, err := client.GetTopics(t.Context(), 10, 0); err == nil {
		t.Fatalf("expected first call to fail")
	}
	_, err := client.GetTopics(t.Context(), 10, 0)
	if !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("open circuit must not reach the server, calls=%d", calls.Load())
	}
	if client.BreakerState() != resilience.CircuitStateOpen {
		t.Fatalf("expected open breaker, got %s", client.BreakerState())
	}
}

func TestClientUploadProfileImage_SendsMultipartFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users/me/profile-image" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("unexpected authorization: %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false})
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "me.png" || header.Header.Get("Content-Type") != "image/png" || string(body) != "png-bytes" {
			t.Errorf("unexpected part: %s %s %q", header.Filename, header.Header.Get("Content-Type"), body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"url": "https://cdn.test/me.png"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ClientConfig{})
	url, err := client.UploadProfileImage(t.Context(), "token-abc", onboarding.ImageRef{
		URI:  "file://" + path,
		Type: "image/png",
		Name: "me.png",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.test/me.png" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestClientUploadProfileImage_RejectsOversizedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.jpg")
	if err := os.WriteFile(path, make([]byte, 64), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", MaxUploadBytes: 16})
	_, err := client.UploadProfileImage(t.Context(), "token", onboarding.ImageRef{URI: path, Type: "image/jpeg"})
	if !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
