package httpapi

import (
	"context"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/user"
)

type contextKey string

const (
	principalContextKey   contextKey = "auth_principal"
	accessTokenContextKey contextKey = "auth_access_token"
)

func withPrincipal(ctx context.Context, p user.Principal, accessToken string) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, p)
	return context.WithValue(ctx, accessTokenContextKey, accessToken)
}

func principalFromContext(ctx context.Context) (user.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(user.Principal)
	return p, ok
}

// accessTokenFromContext returns the bearer token the principal was verified
// with. The wizard forwards it to the learning platform.
func accessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenContextKey).(string)
	return token
}
