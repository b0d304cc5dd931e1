package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/domain/user"
	"github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const (
	testToken    = "token-1"
	testJobToken = "job-secret"
)

type stubVerifier struct{}

func (stubVerifier) VerifyAccessToken(_ context.Context, token string) (user.Principal, error) {
	if token != testToken {
		return user.Principal{}, fmt.Errorf("%w: unknown token", usecase.ErrUnauthorized)
	}
	return user.Principal{UserID: "user-1", Email: "learner@example.com"}, nil
}

type stubGateway struct {
	mu        sync.Mutex
	patches   []onboarding.UserDetailsPatch
	failPatch error
}

func (g *stubGateway) UpdateUserDetails(_ context.Context, patch onboarding.UserDetailsPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patches = append(g.patches, patch)
	return g.failPatch
}

func (g *stubGateway) UploadProfileImage(_ context.Context, file onboarding.ImageRef) (string, error) {
	return "https://cdn.example.com/" + file.Name, nil
}

type stubMedia struct{}

func (stubMedia) Save(_ context.Context, userID string, upload usecase.ImageUpload) (onboarding.ImageRef, error) {
	return onboarding.ImageRef{URI: "/media/" + userID + "/" + upload.Filename, Type: upload.ContentType, Name: upload.Filename}, nil
}

func (stubMedia) Remove(context.Context, onboarding.ImageRef) error {
	return nil
}

type testEnvelope[T any] struct {
	APIVersion string `json:"apiVersion"`
	Data       T      `json:"data"`
	Error      *struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, gateway *stubGateway) http.Handler {
	t.Helper()

	logger := logging.NewNop()
	outbox := usecase.NewSyncOutbox(memory.NewOutboxRepository(), nil, nil, usecase.SyncOutboxConfig{}, nil, logger)
	svc := usecase.NewOnboardingService(
		memory.NewSessionRepository(),
		memory.NewProfileRepository(),
		func(usecase.UserCredentials) usecase.ProfileGateway { return gateway },
		nil,
		outbox,
		stubMedia{},
		usecase.OnboardingServiceConfig{},
		nil,
		logger,
	)
	handler := NewHandler(svc, outbox, logger, WithMaxUploadBytes(1<<20))
	return NewRouter(handler, stubVerifier{}, logger, nil, false, nil, testJobToken)
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionDTO {
	t.Helper()

	var env testEnvelope[sessionDTO]
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal session: %v body=%s", err, rec.Body.String())
	}
	if env.Error != nil {
		t.Fatalf("unexpected error envelope: %s", rec.Body.String())
	}
	return env.Data
}

func adultDOB() string {
	return time.Now().AddDate(-30, 0, 0).Format(dateOfBirthLayout)
}

func TestOnboardingRoutes_RequireBearerToken(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/v1/onboarding/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/onboarding/session", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestOnboardingRoutes_StartSetAndAdvance(t *testing.T) {
	gateway := &stubGateway{}
	router := newTestRouter(t, gateway)

	rec := doJSON(t, router, http.MethodPost, "/v1/onboarding/session", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	started := decodeSession(t, rec)
	if started.CurrentStep != 1 || started.Phase != "active" || started.StepField != string(onboarding.FieldDateOfBirth) {
		t.Fatalf("unexpected started session: %+v", started)
	}

	rec = doJSON(t, router, http.MethodPut, "/v1/onboarding/session/date-of-birth", `{"date_of_birth":"`+adultDOB()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set dob: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeSession(t, rec); !got.CanAdvance {
		t.Fatalf("expected can_advance after adult dob: %+v", got)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/onboarding/session/advance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	advanced := decodeSession(t, rec)
	if advanced.CurrentStep != 2 || advanced.Progress != 0.1 {
		t.Fatalf("unexpected session after advance: step=%d progress=%v", advanced.CurrentStep, advanced.Progress)
	}
	if len(advanced.CompletedSteps) != 1 || advanced.CompletedSteps[0] != 1 {
		t.Fatalf("expected completed_steps [1], got %v", advanced.CompletedSteps)
	}
	if len(gateway.patches) != 1 || gateway.patches[0].DOB == nil {
		t.Fatalf("expected one dob patch, got %+v", gateway.patches)
	}

	rec = doJSON(t, router, http.MethodPut, "/v1/onboarding/session/fields/gender", `{"value":"female"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set gender: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeSession(t, rec); got.Form.Gender != string(onboarding.GenderFemale) {
		t.Fatalf("expected gender FEMALE, got %q", got.Form.Gender)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/onboarding/session/back", "")
	if got := decodeSession(t, rec); got.CurrentStep != 1 || got.Form.Gender != string(onboarding.GenderFemale) {
		t.Fatalf("back should keep answers and return to step 1: %+v", got)
	}
}

func TestOnboardingRoutes_UnderageIsReturnedAsSessionState(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	doJSON(t, router, http.MethodPost, "/v1/onboarding/session", "")
	young := time.Now().AddDate(-10, 0, 0).Format(dateOfBirthLayout)
	doJSON(t, router, http.MethodPut, "/v1/onboarding/session/date-of-birth", `{"date_of_birth":"`+young+`"}`)

	rec := doJSON(t, router, http.MethodPost, "/v1/onboarding/session/advance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if got.CurrentStep != 1 || got.StepError != onboarding.UnderageMessage {
		t.Fatalf("expected underage step error on step 1, got %+v", got)
	}
}

func TestOnboardingRoutes_SkipMovesWithoutSync(t *testing.T) {
	gateway := &stubGateway{}
	router := newTestRouter(t, gateway)

	doJSON(t, router, http.MethodPost, "/v1/onboarding/session", `{"initial_step":3}`)
	rec := doJSON(t, router, http.MethodPost, "/v1/onboarding/session/skip", "")
	got := decodeSession(t, rec)
	if got.CurrentStep != 4 || len(got.CompletedSteps) != 0 {
		t.Fatalf("unexpected session after skip: %+v", got)
	}
	if len(gateway.patches) != 0 {
		t.Fatalf("skip must not sync, got %d patches", len(gateway.patches))
	}
}

func TestOnboardingRoutes_RejectsBadPayloads(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	doJSON(t, router, http.MethodPost, "/v1/onboarding/session", "")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"unknown field", http.MethodPut, "/v1/onboarding/session/fields/gender", `{"value":"female","extra":1}`},
		{"bad date", http.MethodPut, "/v1/onboarding/session/date-of-birth", `{"date_of_birth":"01/02/1990"}`},
		{"missing date", http.MethodPut, "/v1/onboarding/session/date-of-birth", `{}`},
		{"initial step out of range", http.MethodPost, "/v1/onboarding/session", `{"initial_step":11}`},
		{"non text field", http.MethodPut, "/v1/onboarding/session/fields/profilePicture", `{"value":"x"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, tc.method, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOnboardingRoutes_GetWithoutSession(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	rec := doJSON(t, router, http.MethodGet, "/v1/onboarding/session", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestOnboardingRoutes_ListStepsAndOptions(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	rec := doJSON(t, router, http.MethodGet, "/v1/onboarding/steps", "")
	var steps testEnvelope[[]stepDTO]
	if err := sonic.Unmarshal(rec.Body.Bytes(), &steps); err != nil {
		t.Fatalf("unmarshal steps: %v", err)
	}
	if len(steps.Data) != 10 || steps.Data[0].Field != string(onboarding.FieldDateOfBirth) {
		t.Fatalf("unexpected step table: %+v", steps.Data)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/onboarding/options", "")
	var options testEnvelope[[]fieldOptionsDTO]
	if err := sonic.Unmarshal(rec.Body.Bytes(), &options); err != nil {
		t.Fatalf("unmarshal options: %v", err)
	}
	if len(options.Data) != len(onboarding.DropdownFields()) {
		t.Fatalf("expected %d option fields, got %d", len(onboarding.DropdownFields()), len(options.Data))
	}
	for _, fo := range options.Data {
		if fo.Source != string(usecase.OptionSourceFallback) || len(fo.Options) == 0 {
			t.Fatalf("expected fallback options for %s, got %+v", fo.Field, fo)
		}
	}
}

func TestOnboardingRoutes_UploadProfileImage(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	doJSON(t, router, http.MethodPost, "/v1/onboarding/session", `{"initial_step":9}`)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/onboarding/session/profile-image", &body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if got.Form.ProfilePicture == nil || got.Form.ProfilePicture.Name != "me.png" {
		t.Fatalf("expected attached picture, got %+v", got.Form)
	}
}

func TestFlushSyncOutboxJob_RequiresToken(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	req := httptest.NewRequest(http.MethodPost, usecase.FlushSyncOutboxPath, strings.NewReader(`{"intent_id":"i-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without job token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, usecase.FlushSyncOutboxPath, strings.NewReader(`{"intent_id":"i-1"}`))
	req.Header.Set("X-Internal-Job-Token", testJobToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with job token, got %d body=%s", rec.Code, rec.Body.String())
	}

	var env testEnvelope[usecase.FlushResult]
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal flush result: %v", err)
	}
	if env.Data != (usecase.FlushResult{}) {
		t.Fatalf("expected empty flush result, got %+v", env.Data)
	}
}
