package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

const (
	DefaultSyncTimeout   = 10 * time.Second
	DefaultUploadTimeout = 30 * time.Second

	dobLayout = "2006-01-02"
)

// ProfileGateway is the remote user record as seen by the signed-in user.
type ProfileGateway interface {
	UpdateUserDetails(ctx context.Context, patch onboarding.UserDetailsPatch) error
	UploadProfileImage(ctx context.Context, file onboarding.ImageRef) (string, error)
}

// ImagePicker returns a local image reference. ok is false when the user
// cancelled the pick.
type ImagePicker interface {
	PickImage(ctx context.Context) (ref onboarding.ImageRef, ok bool, err error)
}

// Completion is handed to OnComplete when the terminal dialog is accepted.
type Completion struct {
	SessionID       string
	UserID          string
	Form            onboarding.FormData
	CompletedSteps  onboarding.StepSet
	ProfileImageURL string
}

// Callbacks are supplied by the host that owns navigation out of onboarding.
type Callbacks struct {
	OnComplete    func(ctx context.Context, completion Completion) error
	OnAuthSuccess func(ctx context.Context) error
}

type WizardDeps struct {
	UserID        string
	Gateway       ProfileGateway
	Options       OptionSets
	Outbox        SyncQueue
	Picker        ImagePicker
	Callbacks     Callbacks
	SyncTimeout   time.Duration
	UploadTimeout time.Duration
	Metrics       Metrics
	Logger        *logging.Logger
	Now           func() time.Time
	NewID         func() string
}

func (d WizardDeps) normalize() (WizardDeps, error) {
	if d.Gateway == nil {
		return d, fmt.Errorf("%w: profile gateway is required", ErrInvalidInput)
	}
	if d.Options == nil {
		d.Options = FallbackOptionSets()
	}
	if d.SyncTimeout <= 0 {
		d.SyncTimeout = DefaultSyncTimeout
	}
	if d.UploadTimeout <= 0 {
		d.UploadTimeout = DefaultUploadTimeout
	}
	if d.Metrics == nil {
		d.Metrics = NewNoopMetrics()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d, nil
}

// Wizard drives one onboarding session through its ten steps.
// It is safe for concurrent use; only one Continue or Confirm runs at a time.
type Wizard struct {
	deps      WizardDeps
	logger    *logging.Logger
	sessionID string
	userID    string

	mu      sync.Mutex
	session onboarding.Session
	busy    atomic.Bool
}

// NewWizard starts a fresh session. An initialStep outside 1..10 starts at
// the first step.
func NewWizard(deps WizardDeps, initialStep int) (*Wizard, error) {
	deps, err := deps.normalize()
	if err != nil {
		return nil, err
	}

	step := onboarding.Step(initialStep)
	if !step.Valid() {
		step = onboarding.FirstStep
	}
	now := deps.Now().UTC()

	return newWizard(deps, onboarding.Session{
		ID:          deps.NewID(),
		UserID:      deps.UserID,
		CurrentStep: step,
		Form:        onboarding.NewFormData(now),
		Phase:       onboarding.PhaseActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}), nil
}

// RestoreWizard rebuilds a wizard from a stored snapshot.
func RestoreWizard(deps WizardDeps, session onboarding.Session) (*Wizard, error) {
	deps, err := deps.normalize()
	if err != nil {
		return nil, err
	}
	if !session.CurrentStep.Valid() {
		return nil, fmt.Errorf("%w: stored step %d out of range", ErrInvalidInput, session.CurrentStep)
	}
	if session.Phase == "" {
		session.Phase = onboarding.PhaseActive
	}
	if deps.UserID == "" {
		deps.UserID = session.UserID
	}
	return newWizard(deps, session.Clone()), nil
}

func newWizard(deps WizardDeps, session onboarding.Session) *Wizard {
	return &Wizard{
		deps:      deps,
		logger:    deps.Logger.With("session_id", session.ID, "user_id", session.UserID),
		sessionID: session.ID,
		userID:    session.UserID,
		session:   session,
	}
}

func (w *Wizard) Snapshot() onboarding.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.Clone()
}

// Progress is the completed fraction in [0,1].
func (w *Wizard) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return progressOf(w.session.CompletedSteps)
}

func progressOf(set onboarding.StepSet) float64 {
	return float64(set.Len()) / float64(onboarding.TotalSteps)
}

func (w *Wizard) Busy() bool {
	return w.busy.Load()
}

// CurrentDefinition returns the step table entry for the current step.
func (w *Wizard) CurrentDefinition() onboarding.StepDefinition {
	w.mu.Lock()
	step := w.session.CurrentStep
	w.mu.Unlock()
	def, _ := onboarding.Definition(step)
	return def
}

// CanAdvance mirrors the enabled state of the Continue button. Step 1 stays
// pressable so an underage date produces an explicit message.
func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session.Phase != onboarding.PhaseActive || w.busy.Load() {
		return false
	}
	if w.session.CurrentStep == onboarding.StepDateOfBirth {
		return !w.session.Form.DateOfBirth.IsZero()
	}
	return onboarding.IsStepValid(w.session.CurrentStep, w.session.Form, w.deps.Now())
}

func (w *Wizard) Options(field onboarding.Field) []string {
	return w.deps.Options.For(field).Options()
}

func (w *Wizard) OptionSource(field onboarding.Field) OptionSource {
	return w.deps.Options.For(field).Source()
}

// Advance validates the current step, syncs its answer and moves forward.
// Leaving the last step uploads the picture and opens the terminal dialog.
func (w *Wizard) Advance(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.Wizard.Advance")
	defer span.End()

	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)

	w.mu.Lock()
	if err := w.checkActiveLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	step := w.session.CurrentStep
	form := w.session.Form.Clone()
	now := w.deps.Now()

	if step == onboarding.StepDateOfBirth && !form.DateOfBirth.IsZero() && !onboarding.IsAdult(form.DateOfBirth, now) {
		w.session.StepError = onboarding.UnderageMessage
		w.touchLocked()
		w.mu.Unlock()
		return ErrUnderage
	}
	if !onboarding.IsStepValid(step, form, now) {
		w.mu.Unlock()
		return fmt.Errorf("%w: step %d", ErrStepInvalid, step)
	}
	w.session.StepError = ""
	w.session.OpenDropdown = ""
	w.mu.Unlock()

	if step == onboarding.LastStep {
		return w.uploadAndFinish(ctx, *form.ProfilePicture)
	}
	if step <= onboarding.StepBudget {
		w.syncStep(ctx, step, form)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.session.CompletedSteps = w.session.CompletedSteps.Add(step)
	w.moveLocked(step+1, "advance", step)
	return nil
}

// Skip moves forward without validation, completion or sync.
func (w *Wizard) Skip() error {
	if w.busy.Load() {
		return ErrBusy
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}

	step := w.session.CurrentStep
	w.session.StepError = ""
	w.session.OpenDropdown = ""
	if step == onboarding.LastStep {
		w.session.Phase = onboarding.PhaseTerminal
		w.deps.Metrics.StepTransition("skip", step)
		w.touchLocked()
		return nil
	}
	w.moveLocked(step+1, "skip", step)
	return nil
}

// GoBack is a no-op on the first step.
func (w *Wizard) GoBack() error {
	if w.busy.Load() {
		return ErrBusy
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}

	step := w.session.CurrentStep
	w.session.StepError = ""
	w.session.OpenDropdown = ""
	if step <= onboarding.FirstStep {
		w.touchLocked()
		return nil
	}
	w.moveLocked(step-1, "back", step)
	return nil
}

// SelectField stores a dropdown answer and closes that dropdown. The value
// must be one of the field's options; an empty value clears the answer.
func (w *Wizard) SelectField(field onboarding.Field, value string) error {
	if _, ok := onboarding.Registry(field); !ok {
		return fmt.Errorf("%w: %q is not a selectable field", ErrInvalidInput, field)
	}

	value = strings.TrimSpace(value)
	if value != "" {
		canonical, ok := matchOption(w.Options(field), value)
		if !ok {
			return fmt.Errorf("%w: %q is not an option of %s", ErrInvalidInput, value, field)
		}
		value = canonical
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}

	form, ok := w.session.Form.WithText(field, value)
	if !ok {
		return fmt.Errorf("%w: invalid value for %s", ErrInvalidInput, field)
	}
	w.session.Form = form
	if w.session.OpenDropdown == field {
		w.session.OpenDropdown = ""
	}
	w.touchLocked()
	return nil
}

func matchOption(options []string, value string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			return opt, true
		}
	}
	return "", false
}

func (w *Wizard) SetDateOfBirth(dob time.Time) error {
	if dob.IsZero() {
		return fmt.Errorf("%w: date of birth is required", ErrInvalidInput)
	}
	if dob.After(w.deps.Now()) {
		return fmt.Errorf("%w: date of birth cannot be in the future", ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}
	w.session.Form.DateOfBirth = dob
	w.session.StepError = ""
	w.touchLocked()
	return nil
}

// PickProfileImage asks the picker for an image. A cancelled pick leaves the
// form untouched.
func (w *Wizard) PickProfileImage(ctx context.Context) error {
	if w.deps.Picker == nil {
		return fmt.Errorf("%w: image picker is not configured", ErrDependencyUnavailable)
	}

	w.mu.Lock()
	err := w.checkActiveLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	ref, ok, err := w.deps.Picker.PickImage(ctx)
	if err != nil {
		return fmt.Errorf("pick profile image: %w", err)
	}
	if !ok {
		return nil
	}
	if strings.TrimSpace(ref.URI) == "" {
		return fmt.Errorf("%w: picked image has no uri", ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}
	w.session.Form.ProfilePicture = &ref
	w.touchLocked()
	return nil
}

// OpenDropdown toggles the dropdown of field.
func (w *Wizard) OpenDropdown(field onboarding.Field) error {
	if _, ok := onboarding.Registry(field); !ok {
		return fmt.Errorf("%w: %q has no dropdown", ErrInvalidInput, field)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked(); err != nil {
		return err
	}
	if w.session.OpenDropdown == field {
		w.session.OpenDropdown = ""
	} else {
		w.session.OpenDropdown = field
	}
	w.touchLocked()
	return nil
}

func (w *Wizard) DismissPopup() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session.Popup = nil
	w.touchLocked()
}

// Confirm accepts the terminal dialog: pending sync intents of this session
// get one more delivery attempt, then the completion callbacks run in order.
func (w *Wizard) Confirm(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.Wizard.Confirm")
	defer span.End()

	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)

	w.mu.Lock()
	switch w.session.Phase {
	case onboarding.PhaseCompleted:
		w.mu.Unlock()
		return ErrWizardClosed
	case onboarding.PhaseTerminal:
	default:
		w.mu.Unlock()
		return ErrNoTerminalDialog
	}
	completion := Completion{
		SessionID:       w.session.ID,
		UserID:          w.session.UserID,
		Form:            w.session.Form.Clone(),
		CompletedSteps:  w.session.CompletedSteps,
		ProfileImageURL: w.session.ProfileImageURL,
	}
	w.mu.Unlock()

	if w.deps.Outbox != nil {
		result, err := w.deps.Outbox.FlushSession(ctx, completion.SessionID)
		if err != nil {
			w.logger.WarnContext(ctx, "flush session sync intents failed", "error", err)
		} else if result.Rescheduled > 0 || result.Abandoned > 0 {
			w.logger.WarnContext(ctx, "onboarding completed with undelivered answers",
				"rescheduled", result.Rescheduled,
				"abandoned", result.Abandoned,
			)
		}
	}

	if cb := w.deps.Callbacks.OnComplete; cb != nil {
		if err := cb(ctx, completion); err != nil {
			return fmt.Errorf("complete onboarding: %w", err)
		}
	}

	w.mu.Lock()
	w.session.Phase = onboarding.PhaseCompleted
	w.session.Popup = nil
	w.touchLocked()
	w.mu.Unlock()
	w.deps.Metrics.StepTransition("confirm", onboarding.LastStep)

	if cb := w.deps.Callbacks.OnAuthSuccess; cb != nil {
		if err := cb(ctx); err != nil {
			return fmt.Errorf("leave onboarding: %w", err)
		}
	}
	return nil
}

func (w *Wizard) syncStep(ctx context.Context, step onboarding.Step, form onboarding.FormData) {
	patch, ok := BuildStepPatch(step, form, w.deps.Options)
	if !ok {
		w.deps.Metrics.StepSync(step, syncOutcomeSkipped)
		w.logger.DebugContext(ctx, "step sync skipped, no resolvable payload", "step", int(step))
		w.supersedeQueued(ctx, step)
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, w.deps.SyncTimeout)
	err := w.deps.Gateway.UpdateUserDetails(syncCtx, patch)
	cancel()
	if err == nil {
		w.deps.Metrics.StepSync(step, syncOutcomeOK)
		w.supersedeQueued(ctx, step)
		return
	}

	w.deps.Metrics.StepSync(step, syncOutcomeFailed)
	w.logger.WarnContext(ctx, "step sync failed, continuing locally", "step", int(step), "error", err)
	if w.deps.Outbox == nil {
		return
	}

	intent := onboarding.SyncIntent{
		SessionID: w.sessionID,
		UserID:    w.userID,
		Step:      step,
		Patch:     patch,
		Attempts:  1,
		LastError: truncateError(err),
	}
	if enqueueErr := w.deps.Outbox.Enqueue(ctx, intent); enqueueErr != nil {
		w.logger.ErrorContext(ctx, "queue failed step sync", "step", int(step), "error", enqueueErr)
	}
}

// supersedeQueued drops queued retries for step so a later flush cannot
// overwrite the answer just handled.
func (w *Wizard) supersedeQueued(ctx context.Context, step onboarding.Step) {
	if w.deps.Outbox == nil {
		return
	}
	if err := w.deps.Outbox.Supersede(ctx, w.sessionID, step); err != nil {
		w.logger.ErrorContext(ctx, "supersede queued step sync", "step", int(step), "error", err)
	}
}

func (w *Wizard) uploadAndFinish(ctx context.Context, picture onboarding.ImageRef) error {
	uploadCtx, cancel := context.WithTimeout(ctx, w.deps.UploadTimeout)
	url, err := w.deps.Gateway.UploadProfileImage(uploadCtx, picture)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.logger.WarnContext(ctx, "profile image upload failed", "error", err)
		w.session.Popup = &onboarding.Popup{
			Kind:    onboarding.PopupError,
			Title:   "Error",
			Message: "Failed to upload profile picture. Please try again.",
		}
		w.touchLocked()
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	w.session.ProfileImageURL = url
	w.session.CompletedSteps = w.session.CompletedSteps.Add(onboarding.LastStep)
	w.session.Phase = onboarding.PhaseTerminal
	w.session.Popup = &onboarding.Popup{
		Kind:    onboarding.PopupSuccess,
		Title:   "Success",
		Message: "Profile picture uploaded successfully",
	}
	w.deps.Metrics.StepTransition("advance", onboarding.LastStep)
	w.touchLocked()
	return nil
}

func (w *Wizard) checkActiveLocked() error {
	switch w.session.Phase {
	case onboarding.PhaseCompleted:
		return ErrWizardClosed
	case onboarding.PhaseTerminal:
		return ErrDialogOpen
	default:
		return nil
	}
}

func (w *Wizard) moveLocked(to onboarding.Step, action string, from onboarding.Step) {
	w.session.CurrentStep = to
	w.deps.Metrics.StepTransition(action, from)
	w.touchLocked()
}

func (w *Wizard) touchLocked() {
	w.session.UpdatedAt = w.deps.Now().UTC()
}

// BuildStepPatch maps the answer of step to its user-details payload.
// Dropdown answers resolve to remote ids; ok is false when nothing can be sent.
func BuildStepPatch(step onboarding.Step, form onboarding.FormData, options OptionSets) (onboarding.UserDetailsPatch, bool) {
	var patch onboarding.UserDetailsPatch
	lookup := func(field onboarding.Field) (*int64, bool) {
		opt, ok := options.For(field).Lookup(form.Text(field))
		if !ok {
			return nil, false
		}
		id := opt.ID
		return &id, true
	}

	var ok bool
	switch step {
	case onboarding.StepDateOfBirth:
		if form.DateOfBirth.IsZero() {
			return patch, false
		}
		dob := form.DateOfBirth.Format(dobLayout)
		patch.DOB, ok = &dob, true
	case onboarding.StepGender:
		if form.Gender == "" {
			return patch, false
		}
		gender := string(form.Gender)
		patch.Gender, ok = &gender, true
	case onboarding.StepGoal:
		patch.GoalID, ok = lookup(onboarding.FieldGoal)
	case onboarding.StepFocusTopic:
		patch.TopicID, ok = lookup(onboarding.FieldFocusTopic)
	case onboarding.StepEnglishLevel:
		if form.EnglishLevel == "" {
			return patch, false
		}
		level := form.EnglishLevel
		patch.EnglishLevel, ok = &level, true
	case onboarding.StepCountry:
		patch.CountryID, ok = lookup(onboarding.FieldCountry)
	case onboarding.StepLanguage:
		patch.LanguageID, ok = lookup(onboarding.FieldLanguage)
	case onboarding.StepBudget:
		patch.BudgetID, ok = lookup(onboarding.FieldBudget)
	}
	return patch, ok
}
