package learnapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

// IsTransient reports whether a failed call is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return crerr.Is(err, errLearnAPITransient) ||
		errors.Is(err, usecase.ErrDependencyUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isCircuitFailure(err error) bool {
	return err != nil && crerr.Is(err, errLearnAPITransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func sanitizeSensitiveText(value string, secrets ...string) string {
	value = strings.TrimSpace(value)
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if len(secret) < 4 {
			continue
		}
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return value
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
