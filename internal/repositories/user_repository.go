package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// AccountRepository defines the data access contract for accounts, including the single
// refresh grant each account may hold.
type AccountRepository interface {
	Create(ctx context.Context, account models.Account) error
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (models.Account, error)
	SetRefreshToken(ctx context.Context, accountID, token string) error
	RotateRefreshToken(ctx context.Context, accountID, current, next string) error
	ClearRefreshToken(ctx context.Context, accountID string) error
}
