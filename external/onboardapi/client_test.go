package onboardapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		HTTPClient:  srv.Client(),
		BaseURL:     srv.URL + "/",
		AccessToken: "token-1",
		Logger:      logging.NewNop(),
	})
}

func TestClient_AdvanceDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/onboarding/session/advance", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"apiVersion":"1.0","data":{"id":"s-1","current_step":2,"completed_steps":[1],"progress":0.1,"phase":"active","step_field":"gender","can_advance":false,"form":{"date_of_birth":"2000-05-06"}}}`)
	})

	session, err := client.Advance(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, session.CurrentStep)
	assert.Equal(t, []int{1}, session.CompletedSteps)
	assert.InDelta(t, 0.1, session.Progress, 1e-9)
	assert.Equal(t, "gender", session.StepField)
	assert.Equal(t, time.Date(2000, 5, 6, 0, 0, 0, 0, time.UTC), session.DateOfBirth())
}

func TestClient_ErrorEnvelopeBecomesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"apiVersion":"1.0","error":{"code":409,"message":"a request is already in flight","status":"ABORTED","errors":[{"domain":"learnhub-onboarding","reason":"busy","message":"a request is already in flight"}]}}`)
	})

	_, err := client.Skip(t.Context())
	require.Error(t, err)
	assert.True(t, IsReason(err, "busy"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Code)
	assert.Equal(t, "ABORTED", apiErr.Status)
}

func TestClient_NonJSONErrorKeepsStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.Session(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
}

func TestClient_StartAndSetFieldSendJSON(t *testing.T) {
	var bodies []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, r.Method+" "+r.URL.Path+" "+string(raw))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"apiVersion":"1.0","data":{"id":"s-1","current_step":3}}`)
	})

	_, err := client.Start(t.Context(), 3)
	require.NoError(t, err)
	_, err = client.SetField(t.Context(), "goal", "IELTS")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, `POST /v1/onboarding/session {"initial_step":3}`, bodies[0])
	assert.Equal(t, `PUT /v1/onboarding/session/fields/goal {"value":"IELTS"}`, bodies[1])
}

func TestClient_UploadProfileImageSendsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/onboarding/session/profile-image", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "avatar.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"apiVersion":"1.0","data":{"id":"s-1","current_step":9,"popup":{"kind":"success","title":"Uploaded","message":"ok"},"form":{"profile_picture":{"name":"avatar.png","type":"image/png"}}}}`)
	})

	session, err := client.UploadProfileImage(t.Context(), path)
	require.NoError(t, err)
	require.NotNil(t, session.Popup)
	assert.Equal(t, PopupSuccess, session.Popup.Kind)
	assert.Equal(t, "avatar.png", session.Form.Value("profilePicture"))
}

func TestClient_UploadProfileImageMissingFile(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.UploadProfileImage(t.Context(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	_, err = client.UploadProfileImage(t.Context(), "  ")
	require.Error(t, err)
}
