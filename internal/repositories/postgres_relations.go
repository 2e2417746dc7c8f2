package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

// txMaxRetries bounds the serialization retries crdb performs inside a single call.
const txMaxRetries = 10

// PostgresRelationRepository provides PostgreSQL-backed persistence for likes and subscriptions.
type PostgresRelationRepository struct {
	pool db.Pool
}

// NewPostgresRelationRepository constructs a relation repository backed by PostgreSQL.
func NewPostgresRelationRepository(pool db.Pool) *PostgresRelationRepository {
	return &PostgresRelationRepository{pool: pool}
}

// AtomicToggle inserts the relation if absent and deletes it otherwise, in one transaction.
// The primary key on (actor_id, target_id, kind) is what serialises concurrent togglers: the
// insert is a no-op when a row exists, and the delete then removes it. If another writer
// removed the row between the two statements neither affects anything and ErrContended is
// returned for the caller to retry.
func (r *PostgresRelationRepository) AtomicToggle(ctx context.Context, key models.RelationKey) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var active bool
	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var inserted string
		err := tx.QueryRow(ctx, `
            INSERT INTO relations (actor_id, target_id, kind)
            VALUES ($1, $2, $3)
            ON CONFLICT (actor_id, target_id, kind) DO NOTHING
            RETURNING kind
        `, key.ActorID, key.TargetID, string(key.Kind)).Scan(&inserted)
		if err == nil {
			active = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var deleted string
		err = tx.QueryRow(ctx, `
            DELETE FROM relations
            WHERE actor_id = $1 AND target_id = $2 AND kind = $3
            RETURNING kind
        `, key.ActorID, key.TargetID, string(key.Kind)).Scan(&deleted)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrContended
		}
		if err != nil {
			return err
		}
		active = false
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrContended) {
			return false, ErrContended
		}
		return false, classify("toggle relation", err)
	}
	return active, nil
}

// CountLive counts the relations of kind that point at targetID.
func (r *PostgresRelationRepository) CountLive(ctx context.Context, targetID string, kind models.RelationKind) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM relations WHERE target_id = $1 AND kind = $2
    `, targetID, string(kind)).Scan(&count)
	if err != nil {
		return 0, classify("count relations", err)
	}
	return count, nil
}

func (r *PostgresRelationRepository) Exists(ctx context.Context, key models.RelationKey) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM relations WHERE actor_id = $1 AND target_id = $2 AND kind = $3
        )
    `, key.ActorID, key.TargetID, string(key.Kind)).Scan(&exists)
	if err != nil {
		return false, classify("select relation", err)
	}
	return exists, nil
}

// Subscribers lists the accounts subscribed to channelID, most recent first.
func (r *PostgresRelationRepository) Subscribers(ctx context.Context, channelID string) ([]models.AccountSummary, error) {
	return r.listAccounts(ctx, "subscribers", `
        SELECT u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_image_url, u.created_at, u.updated_at
        FROM relations r
        JOIN users u ON u.id = r.actor_id
        WHERE r.target_id = $1 AND r.kind = 'subscription'
        ORDER BY r.created_at DESC
    `, channelID)
}

// SubscribedChannels lists the channels subscriberID follows, most recent first.
func (r *PostgresRelationRepository) SubscribedChannels(ctx context.Context, subscriberID string) ([]models.AccountSummary, error) {
	return r.listAccounts(ctx, "subscribed channels", `
        SELECT u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_image_url, u.created_at, u.updated_at
        FROM relations r
        JOIN users u ON u.id = r.target_id
        WHERE r.actor_id = $1 AND r.kind = 'subscription'
        ORDER BY r.created_at DESC
    `, subscriberID)
}

func (r *PostgresRelationRepository) listAccounts(ctx context.Context, op, query, id string) ([]models.AccountSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, id)
	if err != nil {
		return nil, classify("query "+op, err)
	}
	return scanSummaries(rows, op)
}

// LikedVideos lists the published videos accountID has liked, with their live like counts.
func (r *PostgresRelationRepository) LikedVideos(ctx context.Context, accountID string) ([]models.LikedVideo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumnsQualified+`,
            (SELECT COUNT(*) FROM relations c WHERE c.target_id = v.id AND c.kind = 'video_like')
        FROM relations r
        JOIN videos v ON v.id = r.target_id
        WHERE r.actor_id = $1 AND r.kind = 'video_like' AND v.is_published
        ORDER BY r.created_at DESC
    `, accountID)
	if err != nil {
		return nil, classify("query liked videos", err)
	}
	defer rows.Close()

	liked := []models.LikedVideo{}
	for rows.Next() {
		var item models.LikedVideo
		v := &item.Video
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.VideoURL, &v.ThumbnailURL, &v.Title, &v.Description, &v.Duration,
			&v.Views, &v.Published, &v.CreatedAt, &v.UpdatedAt, &item.LikeCount); err != nil {
			return nil, fmt.Errorf("scan liked video: %w", err)
		}
		liked = append(liked, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked videos: %w", err)
	}
	return liked, nil
}

// deleteWithRelations deletes one row with deleteQuery and drops every relation of kind
// targeting it, atomically.
func deleteWithRelations(ctx context.Context, pool db.Pool, noun, deleteQuery, id string, kind models.RelationKind) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteQuery, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM relations WHERE target_id = $1 AND kind = $2`, id, string(kind))
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return classify("delete "+noun, err)
}

var _ RelationRepository = (*PostgresRelationRepository)(nil)
