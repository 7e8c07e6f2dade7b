package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/quickcart/quickcart-backend/pkg/enums"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxRole      contextKey = "actor_role"
)

// PrincipalFromContext returns the caller resolved by the Principal
// middleware; the zero value is not Valid.
func PrincipalFromContext(ctx context.Context) types.Principal {
	if ctx == nil {
		return types.Principal{}
	}
	if v, ok := ctx.Value(ctxPrincipal).(types.Principal); ok {
		return v
	}
	return types.Principal{}
}

// UserIDFromContext returns the authenticated user id or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	p := PrincipalFromContext(ctx)
	if !p.IsUser() {
		return uuid.Nil
	}
	return *p.UserID
}

func RoleFromContext(ctx context.Context) enums.Role {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.Role); ok {
		return v
	}
	return ""
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, principal types.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// WithRole injects the caller role into the context.
func WithRole(ctx context.Context, role enums.Role) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}
