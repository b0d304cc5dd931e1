package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const dateOfBirthLayout = "2006-01-02"

func (h *Handler) ListOnboardingSteps(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListOnboardingSteps")
	defer span.End()

	steps := h.onboardingService.StepTable()
	items := make([]stepDTO, 0, len(steps))
	for _, def := range steps {
		items = append(items, stepToDTO(def))
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}

func (h *Handler) ListOnboardingOptions(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListOnboardingOptions")
	defer span.End()

	fields := h.onboardingService.Options(ctx)
	items := make([]fieldOptionsDTO, 0, len(fields))
	for _, fo := range fields {
		items = append(items, fieldOptionsDTO{
			Field:       string(fo.Field),
			Placeholder: fo.Placeholder,
			Icon:        fo.Icon,
			Source:      string(fo.Source),
			Options:     fo.Options,
		})
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}

func (h *Handler) StartOnboardingSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.StartOnboardingSession")
	defer span.End()

	creds, err := requireCredentials(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req startSessionRequest
	if err := h.decodeJSON(r, &req, true); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := h.onboardingService.Start(ctx, creds, req.InitialStep)
	if err != nil {
		h.logger.WarnContext(ctx, "start onboarding session failed", "user_id", creds.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}
	annotateSession(ctx, view)
	writeSuccess(ctx, w, http.StatusCreated, sessionToDTO(view))
}

func (h *Handler) GetOnboardingSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetOnboardingSession")
	defer span.End()

	creds, err := requireCredentials(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := h.onboardingService.Get(ctx, creds.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, sessionToDTO(view))
}

func (h *Handler) AdvanceOnboardingSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AdvanceOnboardingSession")
	defer span.End()

	h.runSessionCommand(w, r.WithContext(ctx), "advance", h.onboardingService.Advance)
}

func (h *Handler) SkipOnboardingStep(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SkipOnboardingStep")
	defer span.End()

	h.runSessionCommand(w, r.WithContext(ctx), "skip", h.onboardingService.Skip)
}

func (h *Handler) BackOnboardingStep(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.BackOnboardingStep")
	defer span.End()

	h.runSessionCommand(w, r.WithContext(ctx), "back", h.onboardingService.Back)
}

func (h *Handler) ConfirmOnboardingSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ConfirmOnboardingSession")
	defer span.End()

	h.runSessionCommand(w, r.WithContext(ctx), "confirm", h.onboardingService.Confirm)
}

func (h *Handler) DismissOnboardingPopup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DismissOnboardingPopup")
	defer span.End()

	h.runSessionCommand(w, r.WithContext(ctx), "dismiss popup", h.onboardingService.DismissPopup)
}

func (h *Handler) SetOnboardingField(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SetOnboardingField")
	defer span.End()

	field := onboarding.Field(strings.TrimSpace(r.PathValue("field")))
	var req setFieldRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	h.runSessionCommand(w, r.WithContext(ctx), "select "+string(field), func(ctx2 context.Context, creds usecase.UserCredentials) (usecase.SessionView, error) {
		if req.Open {
			return h.onboardingService.OpenDropdown(ctx2, creds, field)
		}
		return h.onboardingService.SelectField(ctx2, creds, field, req.Value)
	})
}

func (h *Handler) SetOnboardingDateOfBirth(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SetOnboardingDateOfBirth")
	defer span.End()

	var req setDateOfBirthRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}
	dob, err := time.Parse(dateOfBirthLayout, req.DateOfBirth)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", usecase.ErrInvalidInput))
		return
	}

	h.runSessionCommand(w, r.WithContext(ctx), "set date of birth", func(ctx2 context.Context, creds usecase.UserCredentials) (usecase.SessionView, error) {
		return h.onboardingService.SetDateOfBirth(ctx2, creds, dob)
	})
}

func (h *Handler) UploadOnboardingProfileImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UploadOnboardingProfileImage")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, fmt.Errorf("%w: image exceeds %d bytes", usecase.ErrInvalidInput, h.maxUploadBytes))
			return
		}
		writeError(ctx, w, fmt.Errorf("%w: multipart field \"file\" is required", usecase.ErrInvalidInput))
		return
	}
	defer file.Close()

	upload := usecase.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	h.runSessionCommand(w, r.WithContext(ctx), "attach profile image", func(ctx2 context.Context, creds usecase.UserCredentials) (usecase.SessionView, error) {
		return h.onboardingService.AttachProfileImage(ctx2, creds, upload)
	})
}

type sessionCommand func(ctx context.Context, creds usecase.UserCredentials) (usecase.SessionView, error)

// runSessionCommand resolves the caller, runs cmd and writes the resulting
// session. Underage and upload failures are part of the session state, so
// they are returned as a normal session with step_error or popup set.
func (h *Handler) runSessionCommand(w http.ResponseWriter, r *http.Request, action string, cmd sessionCommand) {
	ctx := r.Context()
	creds, err := requireCredentials(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := cmd(ctx, creds)
	if err != nil && !isSessionStateError(err) {
		h.logger.WarnContext(ctx, "onboarding command failed", "action", action, "user_id", creds.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}
	if err != nil {
		h.logger.InfoContext(ctx, "onboarding command surfaced to user", "action", action, "user_id", creds.UserID, "error", err)
	}
	annotateSession(ctx, view)
	writeSuccess(ctx, w, http.StatusOK, sessionToDTO(view))
}

func isSessionStateError(err error) bool {
	return errors.Is(err, usecase.ErrUnderage) || errors.Is(err, usecase.ErrUploadFailed)
}
