package usecase

import "github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"

// Metrics receives wizard and outbox events. The prometheus implementation
// lives in internal/observability.
type Metrics interface {
	StepTransition(action string, from onboarding.Step)
	StepSync(step onboarding.Step, outcome string)
	OutboxDelivery(outcome string)
	OptionSource(field onboarding.Field, source OptionSource)
}

const (
	syncOutcomeOK      = "ok"
	syncOutcomeFailed  = "failed"
	syncOutcomeSkipped = "skipped"

	deliveryDelivered   = "delivered"
	deliveryRescheduled = "rescheduled"
	deliveryAbandoned   = "abandoned"
)

type noopMetrics struct{}

func (noopMetrics) StepTransition(string, onboarding.Step)      {}
func (noopMetrics) StepSync(onboarding.Step, string)            {}
func (noopMetrics) OutboxDelivery(string)                       {}
func (noopMetrics) OptionSource(onboarding.Field, OptionSource) {}

func NewNoopMetrics() Metrics {
	return noopMetrics{}
}
