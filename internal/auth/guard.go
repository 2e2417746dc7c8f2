package auth

import (
	"context"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
)

// Authorize reports whether identity may mutate a resource owned by ownerID.
func Authorize(identity models.Identity, ownerID string) bool {
	return identity.ID != "" && identity.ID == ownerID
}

// CheckOwnership returns a forbidden error unless identity owns resource.
func CheckOwnership(identity models.Identity, resource models.Owned) error {
	if !Authorize(identity, resource.OwnedBy()) {
		return apperr.Forbidden("you are not allowed to modify this resource")
	}
	return nil
}

type identityKey struct{}

// WithIdentity attaches the authenticated identity to ctx.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the request authenticator.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	if ctx == nil {
		return models.Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(models.Identity)
	if !ok || identity.ID == "" {
		return models.Identity{}, false
	}
	return identity, true
}
