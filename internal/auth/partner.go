package auth

import (
	"context"
	"errors"
)

var (
	// ErrPartnerMismatch indicates the resource belongs to a different partner.
	ErrPartnerMismatch = errors.New("partner mismatch")
)

// EnsurePartnerScope verifies the caller may act on the named partner.
// Admins act fleet-wide; everyone else is confined to the partner carried in
// their token.
func EnsurePartnerScope(ctx context.Context, partnerName string) error {
	if RoleFromContext(ctx) == RoleAdmin {
		return nil
	}
	scoped := PartnerFromContext(ctx)
	if scoped == "" || scoped != partnerName {
		return ErrPartnerMismatch
	}
	return nil
}
