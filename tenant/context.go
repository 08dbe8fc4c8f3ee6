package tenant

import (
	"context"

	"github.com/facinv/closing-engine/inventory"
)

type ctxKey struct{}

// WithCompany scopes c to ctx. The tenant goes away with the request context.
func WithCompany(ctx context.Context, c *inventory.Company) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the request's company, or nil.
func FromContext(ctx context.Context) *inventory.Company {
	c, _ := ctx.Value(ctxKey{}).(*inventory.Company)
	return c
}

// IDFromContext returns the request's company id, or "".
func IDFromContext(ctx context.Context) inventory.CompanyID {
	if c := FromContext(ctx); c != nil {
		return c.ID
	}
	return ""
}
