package auth

import "context"

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Partner string
	Role    Role
	Subject string
}

type identityKey struct{}

// WithIdentity attaches the caller identity to the context.
func WithIdentity(ctx context.Context, partner string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{
		Partner: partner,
		Role:    role,
		Subject: subject,
	})
}

// IdentityFromContext returns the caller identity, zero when unauthenticated.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// PartnerFromContext returns the partner name the caller is scoped to.
func PartnerFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).Partner
}

// RoleFromContext returns the caller role.
func RoleFromContext(ctx context.Context) Role {
	return IdentityFromContext(ctx).Role
}

// SubjectFromContext returns the token subject.
func SubjectFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).Subject
}
