package usecase

import (
	"errors"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrStepInvalid      = errors.New("current step is not valid")
	ErrUnderage         = onboarding.ErrUnderage
	ErrUploadFailed     = errors.New("profile image upload failed")
	ErrBusy             = errors.New("a previous action is still in progress")
	ErrDialogOpen       = errors.New("terminal dialog is open")
	ErrWizardClosed     = errors.New("onboarding already completed")
	ErrNoTerminalDialog = errors.New("terminal dialog is not open")
)
