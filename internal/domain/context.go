package domain

import (
	"context"
	"time"
)

// Principal: аутентифицированный пользователь запроса (из JWT)
type Principal struct {
	UserID    UserID
	Email     string
	JTI       string
	ExpiresAt time.Time
}

type ctxKey int

const principalCtxKey ctxKey = 1

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

func PrincipalFromCtx(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok
}
