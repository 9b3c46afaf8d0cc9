package auth

import "context"

type contextKey struct{}

var identityKey contextKey

// Identity is the authenticated caller as carried through request
// context: the tenant it acts in, its role, its user id and the
// preferred locale used for inbox scoring and keyword matching.
type Identity struct {
	TenantID string
	Role     Role
	Subject  string
	Locale   string
}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// TenantIDFromContext extracts the caller's tenant id.
func TenantIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.TenantID
}

// RoleFromContext extracts the caller's role.
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// SubjectFromContext extracts the caller's user id.
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

// LocaleFromContext extracts the caller's preferred locale.
func LocaleFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Locale
}
