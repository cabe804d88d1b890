package actorctx

import (
	"context"

	"github.com/geocoder89/userhub/internal/auth"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns nil when the request carried no verified token.
func PrincipalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ctxKey{}).(*auth.Principal)

	return p
}
