package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	const app = "https://app.learnhub.example"

	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantHeaders string
	}{
		{name: "configured origin", allowed: []string{app}, method: http.MethodGet, origin: app, wantStatus: http.StatusOK, wantOrigin: app, wantHeaders: "Authorization,Content-Type,Accept,X-Internal-Job-Token"},
		{name: "wildcard preflight", allowed: []string{"*"}, method: http.MethodOptions, origin: app, wantStatus: http.StatusNoContent, wantOrigin: "*", wantHeaders: "Authorization,Content-Type,Accept,X-Internal-Job-Token"},
		{name: "unknown origin", allowed: []string{app}, method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK},
		{name: "no origin header", allowed: []string{app}, method: http.MethodGet, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/onboarding/session", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed, okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d want=%d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("Access-Control-Allow-Origin=%q want=%q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Headers"); got != tt.wantHeaders {
				t.Fatalf("Access-Control-Allow-Headers=%q want=%q", got, tt.wantHeaders)
			}
		})
	}
}

func TestShouldTraceRequest(t *testing.T) {
	for _, path := range []string{"/healthz", "/health", "/livez", "/readyz", "/metrics", " /HEALTHZ "} {
		if shouldTraceRequest(path) {
			t.Fatalf("expected no tracing for %q", path)
		}
	}
	for _, path := range []string{"/v1/onboarding/session", "/v1/onboarding/steps", "/docs", "/"} {
		if !shouldTraceRequest(path) {
			t.Fatalf("expected tracing for %q", path)
		}
	}
}

type recordedObservation struct {
	method string
	route  string
	status int
}

type fakeObserver struct {
	seen []recordedObservation
}

func (o *fakeObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.seen = append(o.seen, recordedObservation{method: method, route: route, status: status})
}

func TestRequestLogging_ObservesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/onboarding/session/fields/{field}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	observer := &fakeObserver{}
	handler := RequestLogging(logging.NewNop(), observer, mux, mux)

	for _, path := range []string{"/v1/onboarding/session/fields/goal", "/v1/unknown"} {
		req := httptest.NewRequest(http.MethodPut, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	want := []recordedObservation{
		{method: http.MethodPut, route: "PUT /v1/onboarding/session/fields/{field}", status: http.StatusAccepted},
		{method: http.MethodPut, route: "unmatched", status: http.StatusNotFound},
	}
	if len(observer.seen) != len(want) {
		t.Fatalf("observations=%v want=%v", observer.seen, want)
	}
	for i := range want {
		if observer.seen[i] != want[i] {
			t.Fatalf("observation %d=%+v want=%+v", i, observer.seen[i], want[i])
		}
	}
}

func TestRequireInternalJobToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		wantStatus int
	}{
		{name: "matching token", configured: "secret", sent: "secret", wantStatus: http.StatusOK},
		{name: "wrong token", configured: "secret", sent: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing token", configured: "secret", wantStatus: http.StatusUnauthorized},
		{name: "not configured", configured: "", sent: "secret", wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/internal/jobs/flush-sync-outbox", nil)
			if tt.sent != "" {
				req.Header.Set("X-Internal-Job-Token", tt.sent)
			}
			rec := httptest.NewRecorder()

			RequireInternalJobToken(tt.configured, okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
