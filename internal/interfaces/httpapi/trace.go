package httpapi

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

var (
	apiTracer = otel.Tracer("learnhub-onboarding/internal/interfaces/httpapi")
	noopSpan  = trace.SpanFromContext(context.Background())
)

// startSpan opens spans for handlers only. Middleware and response helpers
// run inside the request span, and untraced routes such as /healthz get none.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() || !shouldCreateHTTPAPISpan(name) {
		return ctx, noopSpan
	}
	return apiTracer.Start(ctx, name)
}

func shouldCreateHTTPAPISpan(name string) bool {
	return strings.HasPrefix(name, "httpapi.Handler.")
}

// annotateSession tags the active span with where the wizard ended up.
func annotateSession(ctx context.Context, view usecase.SessionView) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("onboarding.session_id", view.Session.ID),
		attribute.Int("onboarding.step", int(view.Session.CurrentStep)),
		attribute.String("onboarding.phase", string(view.Session.Phase)),
		attribute.Float64("onboarding.progress", view.Progress),
	)
}
