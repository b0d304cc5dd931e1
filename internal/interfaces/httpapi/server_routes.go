package httpapi

import (
	"net/http"

	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metrics MetricsExporter, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET "+openAPIPath, handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

func registerAuthorizedOnboardingRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	auth := func(fn http.HandlerFunc) http.Handler {
		return RequireAuth(verifier, fn)
	}

	mux.Handle("GET /v1/onboarding/steps", auth(handler.ListOnboardingSteps))
	mux.Handle("GET /v1/onboarding/options", auth(handler.ListOnboardingOptions))

	mux.Handle("POST /v1/onboarding/session", auth(handler.StartOnboardingSession))
	mux.Handle("GET /v1/onboarding/session", auth(handler.GetOnboardingSession))
	mux.Handle("POST /v1/onboarding/session/advance", auth(handler.AdvanceOnboardingSession))
	mux.Handle("POST /v1/onboarding/session/skip", auth(handler.SkipOnboardingStep))
	mux.Handle("POST /v1/onboarding/session/back", auth(handler.BackOnboardingStep))
	mux.Handle("POST /v1/onboarding/session/confirm", auth(handler.ConfirmOnboardingSession))
	mux.Handle("DELETE /v1/onboarding/session/popup", auth(handler.DismissOnboardingPopup))

	mux.Handle("PUT /v1/onboarding/session/fields/{field}", auth(handler.SetOnboardingField))
	mux.Handle("PUT /v1/onboarding/session/date-of-birth", auth(handler.SetOnboardingDateOfBirth))
	mux.Handle("PUT /v1/onboarding/session/profile-image", auth(handler.UploadOnboardingProfileImage))
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST "+usecase.FlushSyncOutboxPath, RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunFlushSyncOutboxJob)))
}
