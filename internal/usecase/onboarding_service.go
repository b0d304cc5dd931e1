package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

// UserCredentials identify the signed-in user a command runs for.
type UserCredentials struct {
	UserID      string
	AccessToken string
}

// GatewayFactory binds the remote user API to one user's credentials.
type GatewayFactory func(creds UserCredentials) ProfileGateway

// MediaStore keeps uploaded images until the wizard sends them upstream.
type MediaStore interface {
	Save(ctx context.Context, userID string, upload ImageUpload) (onboarding.ImageRef, error)
	Remove(ctx context.Context, ref onboarding.ImageRef) error
}

type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type OnboardingServiceConfig struct {
	SyncTimeout   time.Duration
	UploadTimeout time.Duration
}

// SessionView is a session plus the values derived from it for rendering.
type SessionView struct {
	Session    onboarding.Session
	Progress   float64
	Definition onboarding.StepDefinition
	CanAdvance bool
}

// FieldOptions is the current option list of one dropdown field.
type FieldOptions struct {
	Field       onboarding.Field
	Placeholder string
	Icon        string
	Source      OptionSource
	Options     []string
}

type OnboardingService struct {
	sessions onboarding.SessionRepository
	profiles onboarding.ProfileRepository
	gateways GatewayFactory
	options  *OptionLoader
	outbox   SyncQueue
	media    MediaStore
	cfg      OnboardingServiceConfig
	metrics  Metrics
	logger   *logging.Logger
	now      func() time.Time
	locks    *userLocks
}

func NewOnboardingService(
	sessions onboarding.SessionRepository,
	profiles onboarding.ProfileRepository,
	gateways GatewayFactory,
	options *OptionLoader,
	outbox SyncQueue,
	media MediaStore,
	cfg OnboardingServiceConfig,
	metrics Metrics,
	logger *logging.Logger,
) *OnboardingService {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &OnboardingService{
		sessions: sessions,
		profiles: profiles,
		gateways: gateways,
		options:  options,
		outbox:   outbox,
		media:    media,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		locks:    newUserLocks(),
	}
}

// Start opens a fresh wizard for the user, replacing any unfinished one.
func (s *OnboardingService) Start(ctx context.Context, creds UserCredentials, initialStep int) (SessionView, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.Start", attribute.Int("onboarding.initial_step", initialStep))
	defer span.End()

	creds, err := normalizeCredentials(creds)
	if err != nil {
		return SessionView{}, err
	}
	if initialStep != 0 {
		if _, err := onboarding.ParseStep(initialStep); err != nil {
			return SessionView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	unlock, ok := s.locks.tryLock(creds.UserID)
	if !ok {
		return SessionView{}, ErrBusy
	}
	defer unlock()

	previous, hadPrevious, err := s.sessions.GetByUserID(ctx, creds.UserID)
	if err != nil {
		recordSpanError(span, err)
		return SessionView{}, fmt.Errorf("get onboarding session: %w", err)
	}

	var left bool
	w, err := NewWizard(s.wizardDeps(ctx, creds, nil, &left), initialStep)
	if err != nil {
		return SessionView{}, err
	}

	snapshot := w.Snapshot()
	if err := s.sessions.Save(ctx, snapshot); err != nil {
		recordSpanError(span, err)
		return SessionView{}, fmt.Errorf("save onboarding session: %w", err)
	}
	if hadPrevious {
		s.discardImage(ctx, previous.Form.ProfilePicture)
	}
	s.logger.InfoContext(ctx, "onboarding session started",
		"user_id", creds.UserID,
		"session_id", snapshot.ID,
		"step", int(snapshot.CurrentStep),
	)
	return viewOf(w), nil
}

func (s *OnboardingService) Get(ctx context.Context, userID string) (SessionView, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.Get")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SessionView{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	session, err := s.loadSession(ctx, userID)
	if err != nil {
		return SessionView{}, err
	}
	w, err := RestoreWizard(WizardDeps{
		UserID:  userID,
		Gateway: nopGateway{},
		Options: FallbackOptionSets(),
		Metrics: s.metrics,
		Logger:  s.logger,
		Now:     s.now,
	}, session)
	if err != nil {
		return SessionView{}, err
	}
	return viewOf(w), nil
}

func (s *OnboardingService) Advance(ctx context.Context, creds UserCredentials) (SessionView, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.Advance")
	defer span.End()
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.Advance(ctx) })
}

func (s *OnboardingService) Skip(ctx context.Context, creds UserCredentials) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.Skip() })
}

func (s *OnboardingService) Back(ctx context.Context, creds UserCredentials) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.GoBack() })
}

func (s *OnboardingService) SelectField(ctx context.Context, creds UserCredentials, field onboarding.Field, value string) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.SelectField(field, value) })
}

func (s *OnboardingService) OpenDropdown(ctx context.Context, creds UserCredentials, field onboarding.Field) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.OpenDropdown(field) })
}

func (s *OnboardingService) SetDateOfBirth(ctx context.Context, creds UserCredentials, dob time.Time) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.SetDateOfBirth(dob) })
}

func (s *OnboardingService) DismissPopup(ctx context.Context, creds UserCredentials) (SessionView, error) {
	return s.run(ctx, creds, nil, func(w *Wizard) error {
		w.DismissPopup()
		return nil
	})
}

// AttachProfileImage stores the uploaded file and hands it to the wizard as
// the picked image.
func (s *OnboardingService) AttachProfileImage(ctx context.Context, creds UserCredentials, upload ImageUpload) (SessionView, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.AttachProfileImage")
	defer span.End()

	if s.media == nil {
		return SessionView{}, fmt.Errorf("%w: media store is not configured", ErrDependencyUnavailable)
	}
	if upload.Body == nil {
		return SessionView{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(upload.ContentType)), "image/") {
		return SessionView{}, fmt.Errorf("%w: file must be an image", ErrInvalidInput)
	}

	picker := &storedImagePicker{store: s.media, userID: strings.TrimSpace(creds.UserID), upload: upload}
	return s.run(ctx, creds, picker, func(w *Wizard) error { return w.PickProfileImage(ctx) })
}

func (s *OnboardingService) Confirm(ctx context.Context, creds UserCredentials) (SessionView, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OnboardingService.Confirm")
	defer span.End()
	return s.run(ctx, creds, nil, func(w *Wizard) error { return w.Confirm(ctx) })
}

// Options lists every dropdown field with its current option source.
func (s *OnboardingService) Options(ctx context.Context) []FieldOptions {
	sets := s.loadOptions(ctx)
	out := make([]FieldOptions, 0, len(onboarding.DropdownFields()))
	for _, field := range onboarding.DropdownFields() {
		spec, _ := onboarding.Registry(field)
		provider := sets.For(field)
		out = append(out, FieldOptions{
			Field:       field,
			Placeholder: spec.Placeholder,
			Icon:        spec.Icon,
			Source:      provider.Source(),
			Options:     provider.Options(),
		})
	}
	return out
}

func (s *OnboardingService) StepTable() []onboarding.StepDefinition {
	return onboarding.Steps()
}

func (s *OnboardingService) run(ctx context.Context, creds UserCredentials, picker ImagePicker, fn func(w *Wizard) error) (SessionView, error) {
	creds, err := normalizeCredentials(creds)
	if err != nil {
		return SessionView{}, err
	}

	unlock, ok := s.locks.tryLock(creds.UserID)
	if !ok {
		return SessionView{}, ErrBusy
	}
	defer unlock()

	session, err := s.loadSession(ctx, creds.UserID)
	if err != nil {
		return SessionView{}, err
	}

	var left bool
	w, err := RestoreWizard(s.wizardDeps(ctx, creds, picker, &left), session)
	if err != nil {
		return SessionView{}, err
	}

	cmdErr := fn(w)
	view := viewOf(w)
	if left {
		s.discardImage(ctx, session.Form.ProfilePicture)
		if !sameImage(session.Form.ProfilePicture, view.Session.Form.ProfilePicture) {
			s.discardImage(ctx, view.Session.Form.ProfilePicture)
		}
		return view, cmdErr
	}
	if err := s.sessions.Save(ctx, view.Session); err != nil {
		return SessionView{}, fmt.Errorf("save onboarding session: %w", err)
	}
	if !sameImage(session.Form.ProfilePicture, view.Session.Form.ProfilePicture) {
		s.discardImage(ctx, session.Form.ProfilePicture)
	}
	return view, cmdErr
}

// discardImage removes a stored image that no session refers to anymore.
// Failures are logged only.
func (s *OnboardingService) discardImage(ctx context.Context, ref *onboarding.ImageRef) {
	if ref == nil || s.media == nil {
		return
	}
	if err := s.media.Remove(ctx, *ref); err != nil {
		s.logger.WarnContext(ctx, "remove stored profile image failed", "uri", ref.URI, "error", err)
	}
}

func sameImage(a, b *onboarding.ImageRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.URI == b.URI
}

func (s *OnboardingService) loadSession(ctx context.Context, userID string) (onboarding.Session, error) {
	session, exists, err := s.sessions.GetByUserID(ctx, userID)
	if err != nil {
		return onboarding.Session{}, fmt.Errorf("get onboarding session: %w", err)
	}
	if !exists {
		return onboarding.Session{}, fmt.Errorf("%w: no onboarding session for user", ErrNotFound)
	}
	return session, nil
}

func (s *OnboardingService) loadOptions(ctx context.Context) OptionSets {
	if s.options == nil {
		return FallbackOptionSets()
	}
	return s.options.Load(ctx)
}

func (s *OnboardingService) wizardDeps(ctx context.Context, creds UserCredentials, picker ImagePicker, left *bool) WizardDeps {
	var gateway ProfileGateway = nopGateway{}
	if s.gateways != nil {
		gateway = s.gateways(creds)
	}

	return WizardDeps{
		UserID:        creds.UserID,
		Gateway:       gateway,
		Options:       s.loadOptions(ctx),
		Outbox:        s.outbox,
		Picker:        picker,
		SyncTimeout:   s.cfg.SyncTimeout,
		UploadTimeout: s.cfg.UploadTimeout,
		Metrics:       s.metrics,
		Logger:        s.logger,
		Now:           s.now,
		Callbacks: Callbacks{
			OnComplete: func(ctx context.Context, completion Completion) error {
				_, err := s.saveProfile(ctx, completion)
				return err
			},
			OnAuthSuccess: func(ctx context.Context) error {
				if err := s.sessions.Delete(ctx, creds.UserID); err != nil {
					return fmt.Errorf("delete onboarding session: %w", err)
				}
				*left = true
				return nil
			},
		},
	}
}

func (s *OnboardingService) saveProfile(ctx context.Context, completion Completion) (onboarding.Profile, error) {
	existing, exists, err := s.profiles.GetByUserID(ctx, completion.UserID)
	if err != nil {
		return onboarding.Profile{}, fmt.Errorf("get onboarding profile: %w", err)
	}

	now := s.now().UTC()
	form := completion.Form
	out := existing
	out.UserID = completion.UserID
	out.DateOfBirth = form.DateOfBirth
	out.Gender = form.Gender
	out.Goal = form.Goal
	out.FocusTopic = form.FocusTopic
	out.EnglishLevel = form.EnglishLevel
	out.Country = form.Country
	out.Language = form.Language
	out.Budget = form.Budget
	if completion.ProfileImageURL != "" {
		out.ProfileImageURL = completion.ProfileImageURL
	}
	out.CompletedSteps = out.CompletedSteps | completion.CompletedSteps
	out.OnboardingCompleted = true
	if !exists {
		out.CreatedAt = now
	}
	out.UpdatedAt = now

	if err := s.profiles.Upsert(ctx, out); err != nil {
		return onboarding.Profile{}, fmt.Errorf("upsert onboarding profile: %w", err)
	}
	return out, nil
}

func viewOf(w *Wizard) SessionView {
	session := w.Snapshot()
	def, _ := onboarding.Definition(session.CurrentStep)
	return SessionView{
		Session:    session,
		Progress:   progressOf(session.CompletedSteps),
		Definition: def,
		CanAdvance: w.CanAdvance(),
	}
}

func normalizeCredentials(creds UserCredentials) (UserCredentials, error) {
	creds.UserID = strings.TrimSpace(creds.UserID)
	creds.AccessToken = strings.TrimSpace(creds.AccessToken)
	if creds.UserID == "" {
		return creds, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return creds, nil
}

type storedImagePicker struct {
	store  MediaStore
	userID string
	upload ImageUpload
}

func (p *storedImagePicker) PickImage(ctx context.Context) (onboarding.ImageRef, bool, error) {
	ref, err := p.store.Save(ctx, p.userID, p.upload)
	if err != nil {
		return onboarding.ImageRef{}, false, fmt.Errorf("store profile image: %w", err)
	}
	return ref, true, nil
}

// nopGateway backs read-only wizard restores.
type nopGateway struct{}

func (nopGateway) UpdateUserDetails(context.Context, onboarding.UserDetailsPatch) error {
	return fmt.Errorf("%w: profile gateway is not configured", ErrDependencyUnavailable)
}

func (nopGateway) UploadProfileImage(context.Context, onboarding.ImageRef) (string, error) {
	return "", fmt.Errorf("%w: profile gateway is not configured", ErrDependencyUnavailable)
}

type userLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newUserLocks() *userLocks {
	return &userLocks{held: make(map[string]struct{})}
}

func (l *userLocks) tryLock(userID string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[userID]; busy {
		return nil, false
	}
	l.held[userID] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, userID)
		l.mu.Unlock()
	}, true
}
