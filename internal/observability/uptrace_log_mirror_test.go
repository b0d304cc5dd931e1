package observability

import (
	"testing"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

func TestIsQuietRequestLog(t *testing.T) {
	if !isQuietRequestLog("http_request", []any{"http_path", "/healthz"}) {
		t.Fatalf("expected health check log to be skipped")
	}
	if !isQuietRequestLog("http_request", []any{"http_method", "GET", "http_path", "/metrics"}) {
		t.Fatalf("expected metrics scrape log to be skipped")
	}
	if isQuietRequestLog("http_request", []any{"http_path", "/v1/onboarding/session"}) {
		t.Fatalf("did not expect session log to be skipped")
	}
	if isQuietRequestLog("outbox flush finished", []any{"http_path", "/healthz"}) {
		t.Fatalf("did not expect non-request event to be skipped")
	}
}

func TestLogAttributes_RedactsCredentials(t *testing.T) {
	attrs := logAttributes([]any{"user_id", "user-1", "access_token", "abc", "step", onboarding.StepCountry, "dangling"})
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "user_id" || attrs[0].Value.AsString() != "user-1" {
		t.Fatalf("unexpected user_id attribute")
	}
	if attrs[1].Value.AsString() != redactedValue {
		t.Fatalf("expected access token to be redacted, got %s", attrs[1].Value.AsString())
	}
	if attrs[3].Key != "dangling" || attrs[3].Value.Kind() != otellog.KindEmpty {
		t.Fatalf("unexpected dangling attribute")
	}
}

func TestToOTelLogValue_Map(t *testing.T) {
	v := toOTelLogValue(map[string]any{"delivered": 2, "abandoned": 0}, 0)
	if v.Kind() != otellog.KindMap {
		t.Fatalf("expected map value, got %s", v.Kind())
	}
	if len(v.AsMap()) != 2 {
		t.Fatalf("expected 2 map items, got %d", len(v.AsMap()))
	}
}
