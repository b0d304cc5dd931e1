package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	crerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/resilience"
)

// FlushSyncOutboxPath is the internal job route a delayed flush is published to.
const FlushSyncOutboxPath = "/v1/internal/jobs/flush-sync-outbox"

type JobQueue interface {
	Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error
}

type noopJobQueue struct{}

func (noopJobQueue) Enqueue(_ context.Context, _ string, _ any, _ time.Duration, _ string) error {
	return nil
}

func NewNoopJobQueue() JobQueue {
	return noopJobQueue{}
}

// IntentDeliverer replays a queued user-details write for userID.
type IntentDeliverer interface {
	DeliverUserDetails(ctx context.Context, userID string, patch onboarding.UserDetailsPatch) error
}

// SyncQueue is the part of the outbox the wizard depends on.
type SyncQueue interface {
	Enqueue(ctx context.Context, intent onboarding.SyncIntent) error
	Supersede(ctx context.Context, sessionID string, step onboarding.Step) error
	FlushSession(ctx context.Context, sessionID string) (FlushResult, error)
}

type SyncOutboxConfig struct {
	Backoff   resilience.BackoffConfig
	Workers   int
	BatchSize int
	// IsRetryable reports whether a delivery error may succeed later.
	// Nil treats every error as retryable.
	IsRetryable func(error) bool
}

type FlushResult struct {
	Delivered   int `json:"delivered"`
	Rescheduled int `json:"rescheduled"`
	Abandoned   int `json:"abandoned"`
}

func (r *FlushResult) add(outcome string) {
	switch outcome {
	case deliveryDelivered:
		r.Delivered++
	case deliveryRescheduled:
		r.Rescheduled++
	case deliveryAbandoned:
		r.Abandoned++
	}
}

type SyncOutbox struct {
	repo      onboarding.OutboxRepository
	deliverer IntentDeliverer
	queue     JobQueue
	cfg       SyncOutboxConfig
	metrics   Metrics
	logger    *logging.Logger
	now       func() time.Time
	newID     func() string

	flushing atomic.Bool
}

func NewSyncOutbox(
	repo onboarding.OutboxRepository,
	deliverer IntentDeliverer,
	queue JobQueue,
	cfg SyncOutboxConfig,
	metrics Metrics,
	logger *logging.Logger,
) *SyncOutbox {
	cfg.Backoff = resilience.NormalizeBackoffConfig(cfg.Backoff)
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if queue == nil {
		queue = NewNoopJobQueue()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &SyncOutbox{
		repo:      repo,
		deliverer: deliverer,
		queue:     queue,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Enqueue stores an intent whose first live attempt already failed and
// schedules a delayed flush for it. Older pending intents for the same
// session step are superseded first.
func (o *SyncOutbox) Enqueue(ctx context.Context, intent onboarding.SyncIntent) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncOutbox.Enqueue")
	defer span.End()

	if strings.TrimSpace(intent.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if intent.Patch.IsEmpty() {
		return fmt.Errorf("%w: patch is empty", ErrInvalidInput)
	}

	now := o.now().UTC()
	if intent.ID == "" {
		intent.ID = o.newID()
	}
	if intent.Attempts < 1 {
		intent.Attempts = 1
	}
	delay := o.cfg.Backoff.Delay(intent.Attempts)
	intent.Status = onboarding.IntentPending
	intent.NextAttemptAt = now.Add(delay)
	intent.CreatedAt = now
	intent.UpdatedAt = now

	if intent.SessionID != "" {
		if _, err := o.repo.SupersedeStep(ctx, intent.SessionID, intent.Step, now); err != nil {
			return fmt.Errorf("supersede older sync intents: %w", err)
		}
	}
	if err := o.repo.Enqueue(ctx, intent); err != nil {
		return fmt.Errorf("enqueue sync intent: %w", err)
	}

	dedupID := "sync-outbox-" + intent.ID
	if err := o.queue.Enqueue(ctx, FlushSyncOutboxPath, map[string]any{"intent_id": intent.ID}, delay, dedupID); err != nil {
		o.logger.WarnContext(ctx, "schedule outbox flush failed", "intent_id", intent.ID, "error", err)
	}
	return nil
}

// Supersede retires the pending intents of a session step after a newer
// answer for it was delivered live.
func (o *SyncOutbox) Supersede(ctx context.Context, sessionID string, step onboarding.Step) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	retired, err := o.repo.SupersedeStep(ctx, sessionID, step, o.now().UTC())
	if err != nil {
		return fmt.Errorf("supersede sync intents: %w", err)
	}
	if retired > 0 {
		o.logger.DebugContext(ctx, "stale sync intents superseded", "session_id", sessionID, "step", int(step), "count", retired)
	}
	return nil
}

// Flush delivers every due pending intent using a bounded worker pool.
// Intents of one user are delivered one at a time in creation order.
// Concurrent calls collapse into the one already running.
func (o *SyncOutbox) Flush(ctx context.Context) (FlushResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncOutbox.Flush")
	defer span.End()

	if !o.flushing.CompareAndSwap(false, true) {
		return FlushResult{}, nil
	}
	defer o.flushing.Store(false)

	due, err := o.repo.ListDue(ctx, o.now().UTC(), o.cfg.BatchSize)
	if err != nil {
		recordSpanError(span, err)
		return FlushResult{}, fmt.Errorf("list due sync intents: %w", err)
	}
	span.SetAttributes(attribute.Int("outbox.due", len(due)))
	if len(due) == 0 {
		return FlushResult{}, nil
	}

	batches := groupByUser(due)
	workerCount := o.cfg.Workers
	if workerCount > len(batches) {
		workerCount = len(batches)
	}
	p, err := ants.NewPool(workerCount)
	if err != nil {
		return FlushResult{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer p.Release()

	var (
		mu      sync.Mutex
		result  FlushResult
		workers sync.WaitGroup
	)
	for _, batch := range batches {
		workers.Add(1)
		if err := p.Submit(func() {
			defer workers.Done()
			for _, intent := range batch {
				outcome := o.deliver(ctx, intent)
				mu.Lock()
				result.add(outcome)
				mu.Unlock()
			}
		}); err != nil {
			workers.Done()
			workers.Wait()
			return result, fmt.Errorf("submit sync intent to worker pool: %w", err)
		}
	}
	workers.Wait()

	o.logger.InfoContext(ctx, "sync outbox flushed",
		"delivered", result.Delivered,
		"rescheduled", result.Rescheduled,
		"abandoned", result.Abandoned,
	)
	return result, nil
}

// FlushSession delivers one session's pending intents now, ignoring their
// scheduled time.
func (o *SyncOutbox) FlushSession(ctx context.Context, sessionID string) (FlushResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncOutbox.FlushSession", attribute.String("onboarding.session_id", sessionID))
	defer span.End()

	intents, err := o.repo.ListBySession(ctx, sessionID)
	if err != nil {
		recordSpanError(span, err)
		return FlushResult{}, fmt.Errorf("list session sync intents: %w", err)
	}

	var result FlushResult
	for _, intent := range intents {
		if intent.Status != onboarding.IntentPending {
			continue
		}
		result.add(o.deliver(ctx, intent))
	}
	return result, nil
}

func (o *SyncOutbox) deliver(ctx context.Context, intent onboarding.SyncIntent) string {
	if o.deliverer == nil {
		return ""
	}

	deliverErr := o.deliverer.DeliverUserDetails(ctx, intent.UserID, intent.Patch)
	now := o.now().UTC()
	if deliverErr == nil {
		if err := o.repo.MarkDelivered(ctx, intent.ID, now); err != nil {
			o.logger.ErrorContext(ctx, "mark sync intent delivered failed", "intent_id", intent.ID, "error", err)
		}
		o.metrics.OutboxDelivery(deliveryDelivered)
		return deliveryDelivered
	}

	attempts := intent.Attempts + 1
	lastErr := truncateError(deliverErr)
	retryable := o.cfg.IsRetryable == nil || o.cfg.IsRetryable(deliverErr)
	if !retryable || attempts >= o.cfg.Backoff.MaxAttempts {
		if err := o.repo.MarkAbandoned(ctx, intent.ID, attempts, lastErr, now); err != nil {
			o.logger.ErrorContext(ctx, "mark sync intent abandoned failed", "intent_id", intent.ID, "error", err)
		}
		o.logger.WarnContext(ctx, "sync intent abandoned",
			"intent_id", intent.ID,
			"user_id", intent.UserID,
			"step", int(intent.Step),
			"attempts", attempts,
			"error", deliverErr,
		)
		o.metrics.OutboxDelivery(deliveryAbandoned)
		return deliveryAbandoned
	}

	next := now.Add(o.cfg.Backoff.Delay(attempts))
	if err := o.repo.Reschedule(ctx, intent.ID, attempts, next, lastErr); err != nil {
		o.logger.ErrorContext(ctx, "reschedule sync intent failed", "intent_id", intent.ID, "error", err)
	}
	o.metrics.OutboxDelivery(deliveryRescheduled)
	return deliveryRescheduled
}

// groupByUser splits intents per user and keeps the input order inside
// each group.
func groupByUser(intents []onboarding.SyncIntent) [][]onboarding.SyncIntent {
	index := make(map[string]int)
	var groups [][]onboarding.SyncIntent
	for _, intent := range intents {
		i, ok := index[intent.UserID]
		if !ok {
			i = len(groups)
			index[intent.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], intent)
	}
	return groups
}

const maxLastErrorBytes = 512

// truncateError caps the stored error text without splitting a UTF-8 rune.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) <= maxLastErrorBytes {
		return msg
	}
	cut := maxLastErrorBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// StartPeriodicFlush runs Flush on a cron schedule until the returned
// scheduler is stopped.
func (o *SyncOutbox) StartPeriodicFlush(ctx context.Context, spec string) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: cron spec is required", ErrInvalidInput)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := o.Flush(ctx); err != nil {
			o.logger.ErrorContext(ctx, "periodic outbox flush failed", "error", err)
		}
	}); err != nil {
		return nil, crerr.Wrapf(err, "parse outbox flush schedule %q", spec)
	}
	c.Start()
	return c, nil
}
