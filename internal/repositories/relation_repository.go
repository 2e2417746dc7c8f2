package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// RelationRepository stores likes and subscriptions, one row per live relation.
type RelationRepository interface {
	AtomicToggle(ctx context.Context, key models.RelationKey) (bool, error)
	CountLive(ctx context.Context, targetID string, kind models.RelationKind) (int64, error)
	Exists(ctx context.Context, key models.RelationKey) (bool, error)
	Subscribers(ctx context.Context, channelID string) ([]models.AccountSummary, error)
	SubscribedChannels(ctx context.Context, subscriberID string) ([]models.AccountSummary, error)
	LikedVideos(ctx context.Context, accountID string) ([]models.LikedVideo, error)
}
