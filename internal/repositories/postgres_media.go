package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

const videoColumnsQualified = `v.id, v.owner_id, v.video_url, v.thumbnail_url, v.title, v.description, v.duration, v.views, v.is_published, v.created_at, v.updated_at`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, video_url, thumbnail_url, title, description, duration, views, is_published, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.VideoURL, video.ThumbnailURL, video.Title, video.Description, video.Duration,
		video.Views, video.Published, video.CreatedAt, video.UpdatedAt)
	return classify("insert video", err)
}

func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumnsQualified+` FROM videos v WHERE v.id = $1`, id))
	if err != nil {
		return models.Video{}, classify("select video", err)
	}
	return video, nil
}

// ListPublished returns one page of published videos, newest first, with the total count.
func (r *PostgresVideoRepository) ListPublished(ctx context.Context, page models.Page) ([]models.Video, int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM videos WHERE is_published`).Scan(&total); err != nil {
		return nil, 0, classify("count videos", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumnsQualified+`
        FROM videos v
        WHERE v.is_published
        ORDER BY v.created_at DESC, v.id
        LIMIT $1 OFFSET $2
    `, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, classify("query videos", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, total, nil
}

// Update writes title, description and thumbnail.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, thumbnail_url = $4, updated_at = $5
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.ThumbnailURL, video.UpdatedAt)
	if err != nil {
		return classify("update video", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresVideoRepository) SetPublished(ctx context.Context, id string, published bool, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET is_published = $2, updated_at = $3
        WHERE id = $1
    `, id, published, at)
	if err != nil {
		return classify("update video publish status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the video, the likes on it and the likes on its comments. Comments and
// playlist entries go with it through ON DELETE CASCADE.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            DELETE FROM relations
            WHERE kind = 'comment_like'
              AND target_id IN (SELECT id FROM comments WHERE video_id = $1)
        `, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE target_id = $1 AND kind = 'video_like'`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return classify("delete video", err)
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.VideoURL, &v.ThumbnailURL, &v.Title, &v.Description, &v.Duration,
		&v.Views, &v.Published, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// PostgresPlaylistRepository provides PostgreSQL-backed persistence for playlists.
type PostgresPlaylistRepository struct {
	pool db.Pool
}

// NewPostgresPlaylistRepository constructs a playlist repository backed by PostgreSQL.
func NewPostgresPlaylistRepository(pool db.Pool) *PostgresPlaylistRepository {
	return &PostgresPlaylistRepository{pool: pool}
}

// Create stores the playlist and its initial videos in one transaction.
func (r *PostgresPlaylistRepository) Create(ctx context.Context, playlist models.Playlist) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO playlists (id, owner_id, name, description, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, playlist.ID, playlist.OwnerID, playlist.Name, playlist.Description, playlist.CreatedAt, playlist.UpdatedAt); err != nil {
			return err
		}
		return insertPlaylistVideos(ctx, tx, playlist.ID, playlist.VideoIDs)
	})
	return classify("insert playlist", err)
}

func (r *PostgresPlaylistRepository) FindByID(ctx context.Context, id string) (models.Playlist, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var p models.Playlist
	err = conn.QueryRow(ctx, `
        SELECT id, owner_id, name, description, created_at, updated_at
        FROM playlists
        WHERE id = $1
    `, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Playlist{}, classify("select playlist", err)
	}

	byPlaylist, err := playlistVideos(ctx, conn, []string{p.ID})
	if err != nil {
		return models.Playlist{}, err
	}
	p.VideoIDs = byPlaylist[p.ID]
	return p, nil
}

// ListByOwner returns the owner's playlists, most recently updated first.
func (r *PostgresPlaylistRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, owner_id, name, description, created_at, updated_at
        FROM playlists
        WHERE owner_id = $1
        ORDER BY updated_at DESC
    `, ownerID)
	if err != nil {
		return nil, classify("query playlists", err)
	}

	playlists := []models.Playlist{}
	var ids []string
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, p)
		ids = append(ids, p.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlists: %w", err)
	}
	if len(ids) == 0 {
		return playlists, nil
	}

	byPlaylist, err := playlistVideos(ctx, conn, ids)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		playlists[i].VideoIDs = byPlaylist[playlists[i].ID]
	}
	return playlists, nil
}

func (r *PostgresPlaylistRepository) Update(ctx context.Context, playlist models.Playlist) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE playlists
            SET name = $2, description = $3, updated_at = $4
            WHERE id = $1
        `, playlist.ID, playlist.Name, playlist.Description, playlist.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if playlist.VideoIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM playlist_videos WHERE playlist_id = $1`, playlist.ID); err != nil {
			return err
		}
		return insertPlaylistVideos(ctx, tx, playlist.ID, playlist.VideoIDs)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return classify("update playlist", err)
}

func (r *PostgresPlaylistRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return classify("delete playlist", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddVideo appends videoID at the end of the playlist.
func (r *PostgresPlaylistRepository) AddVideo(ctx context.Context, playlistID, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(crdb.WithMaxRetries(ctx, txMaxRetries), conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO playlist_videos (playlist_id, video_id, position)
            SELECT $1, $2, COALESCE(MAX(position) + 1, 0) FROM playlist_videos WHERE playlist_id = $1
        `, playlistID, videoID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = NOW() WHERE id = $1`, playlistID)
		return err
	})
	return classify("add playlist video", err)
}

func (r *PostgresPlaylistRepository) RemoveVideo(ctx context.Context, playlistID, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM playlist_videos
        WHERE playlist_id = $1 AND video_id = $2
    `, playlistID, videoID)
	if err != nil {
		return classify("remove playlist video", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertPlaylistVideos(ctx context.Context, tx pgx.Tx, playlistID string, videoIDs []string) error {
	for i, videoID := range videoIDs {
		if _, err := tx.Exec(ctx, `
            INSERT INTO playlist_videos (playlist_id, video_id, position)
            VALUES ($1, $2, $3)
        `, playlistID, videoID, i); err != nil {
			return err
		}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func playlistVideos(ctx context.Context, q querier, playlistIDs []string) (map[string][]string, error) {
	rows, err := q.Query(ctx, `
        SELECT playlist_id, video_id
        FROM playlist_videos
        WHERE playlist_id = ANY($1::UUID[])
        ORDER BY playlist_id, position
    `, playlistIDs)
	if err != nil {
		return nil, classify("query playlist videos", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(playlistIDs))
	for _, id := range playlistIDs {
		out[id] = []string{}
	}
	for rows.Next() {
		var playlistID, videoID string
		if err := rows.Scan(&playlistID, &videoID); err != nil {
			return nil, fmt.Errorf("scan playlist video: %w", err)
		}
		out[playlistID] = append(out[playlistID], videoID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlist videos: %w", err)
	}
	return out, nil
}

var (
	_ VideoRepository    = (*PostgresVideoRepository)(nil)
	_ PlaylistRepository = (*PostgresPlaylistRepository)(nil)
)
