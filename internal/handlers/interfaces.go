package handlers

import (
	"context"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/relations"
)

// AccountStore captures the account operations required by the user handlers.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (models.Account, error)
}

// SessionService issues, rotates and revokes session credentials.
type SessionService interface {
	Login(ctx context.Context, identifier, secret string) (auth.LoginResult, error)
	Issue(ctx context.Context, account models.Account) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Logout(ctx context.Context, accountID string) error
}

// RelationToggler flips likes and subscriptions.
type RelationToggler interface {
	Toggle(ctx context.Context, actorID, targetID string, kind models.RelationKind) (relations.Result, error)
}

// RelationQueries lists the relations an account takes part in.
type RelationQueries interface {
	Subscribers(ctx context.Context, channelID string) ([]models.AccountSummary, error)
	SubscribedChannels(ctx context.Context, subscriberID string) ([]models.AccountSummary, error)
	LikedVideos(ctx context.Context, accountID string) ([]models.LikedVideo, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

var (
	_ SessionService  = (*auth.Manager)(nil)
	_ RelationToggler = (*relations.Engine)(nil)
)
