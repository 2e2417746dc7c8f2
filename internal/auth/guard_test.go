package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
)

func TestAuthorize(t *testing.T) {
	owner := models.Identity{ID: "owner-1"}
	other := models.Identity{ID: "other-2"}

	assert.True(t, Authorize(owner, "owner-1"))
	assert.False(t, Authorize(other, "owner-1"))
	assert.False(t, Authorize(models.Identity{}, ""))
	assert.False(t, Authorize(models.Identity{}, "owner-1"))
}

func TestCheckOwnershipAcrossResources(t *testing.T) {
	owner := models.Identity{ID: "owner-1"}
	other := models.Identity{ID: "other-2"}

	resources := []models.Owned{
		models.Tweet{OwnerID: "owner-1"},
		models.Comment{OwnerID: "owner-1"},
		models.Playlist{OwnerID: "owner-1"},
		models.Video{OwnerID: "owner-1"},
	}
	for _, resource := range resources {
		assert.NoError(t, CheckOwnership(owner, resource))
		err := CheckOwnership(other, resource)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "%T", resource)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), models.Identity{ID: "acc-1", Username: "u1"})
	identity, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", identity.Username)
}

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("s3cret-pass")
	assert.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.NoError(t, hasher.Compare(hash, "s3cret-pass"))
	assert.ErrorIs(t, hasher.Compare(hash, "nope"), ErrSecretMismatch)

	_, err = hasher.Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	assert.Equal(t, DefaultHashCost, NewBcryptHasher(99).Cost)
}
