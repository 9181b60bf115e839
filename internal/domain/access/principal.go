package access

import (
	"context"

	"github.com/carehub/carehub/internal/domain/records"
)

// Principal is the authenticated actor performing an operation.
type Principal struct {
	ID       string       `json:"id"`
	FullName string       `json:"full_name"`
	Role     records.Role `json:"role_name"`
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != ""
}
