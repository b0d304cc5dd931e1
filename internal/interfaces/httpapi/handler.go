package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const defaultMaxUploadBytes int64 = 8 << 20

type Handler struct {
	onboardingService *usecase.OnboardingService
	syncOutbox        *usecase.SyncOutbox
	logger            *logging.Logger
	validator         *validator.Validate
	maxUploadBytes    int64
}

type HandlerOption func(*Handler)

// WithMaxUploadBytes caps the profile image request body.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewHandler(
	onboardingService *usecase.OnboardingService,
	syncOutbox *usecase.SyncOutbox,
	logger *logging.Logger,
	opts ...HandlerOption,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	h := &Handler{
		onboardingService: onboardingService,
		syncOutbox:        syncOutbox,
		logger:            logger,
		validator:         validator.New(),
		maxUploadBytes:    defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a strict JSON body. An empty body leaves dst untouched
// when allowEmpty is set.
func (h *Handler) decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := jsoniter.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func requireCredentials(ctx context.Context) (usecase.UserCredentials, error) {
	principal, ok := principalFromContext(ctx)
	if !ok || strings.TrimSpace(principal.UserID) == "" {
		return usecase.UserCredentials{}, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized)
	}
	return usecase.UserCredentials{
		UserID:      principal.UserID,
		AccessToken: accessTokenFromContext(ctx),
	}, nil
}
