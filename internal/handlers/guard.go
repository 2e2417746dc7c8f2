package handlers

import (
	"context"
	"errors"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

func currentIdentity(ctx context.Context) (models.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return models.Identity{}, apperr.Unauthorized("unauthorized request")
	}
	return identity, nil
}

// findOrNotFound loads a resource and translates absence into a not_found error naming noun.
func findOrNotFound[T any](ctx context.Context, find func(context.Context, string) (T, error), id, noun string) (T, error) {
	resource, err := find(ctx, id)
	if err != nil {
		var zero T
		if errors.Is(err, repositories.ErrNotFound) {
			return zero, apperr.NotFound(noun + " not found")
		}
		return zero, apperr.Internal("failed to load "+noun, err)
	}
	return resource, nil
}

// loadOwned fetches the resource and rejects callers that do not own it. Every mutation of an
// owned resource goes through here: not_found first, then forbidden.
func loadOwned[T models.Owned](ctx context.Context, find func(context.Context, string) (T, error), id, noun string) (T, error) {
	var zero T
	identity, err := currentIdentity(ctx)
	if err != nil {
		return zero, err
	}
	resource, err := findOrNotFound(ctx, find, id, noun)
	if err != nil {
		return zero, err
	}
	if err := auth.CheckOwnership(identity, resource); err != nil {
		return zero, err
	}
	return resource, nil
}
