package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidtube/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if os.Getenv("VIDTUBE_INTEGRATION") != "1" {
		os.Exit(m.Run())
	}

	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresAccountRepository_CreateFindAndSessions(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	account := createTestAccount(t, repo, "alice")

	dup := account
	dup.ID = uuid.NewString()
	dup.Email = "other@example.com"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	byEmail, err := repo.FindByIdentifier(ctx, "  ALICE@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != account.ID || byEmail.RefreshToken != nil {
		t.Fatalf("unexpected account fetched: %+v", byEmail)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	if err := repo.SetRefreshToken(ctx, account.ID, "r1"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}
	if err := repo.RotateRefreshToken(ctx, account.ID, "r1", "r2"); err != nil {
		t.Fatalf("rotate refresh token: %v", err)
	}
	if err := repo.RotateRefreshToken(ctx, account.ID, "r1", "r3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating a superseded token, got %v", err)
	}

	fetched, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.RefreshToken == nil || *fetched.RefreshToken != "r2" {
		t.Fatalf("expected stored token r2, got %v", fetched.RefreshToken)
	}

	if err := repo.ClearRefreshToken(ctx, account.ID); err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}
	if err := repo.RotateRefreshToken(ctx, account.ID, "r2", "r4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after logout, got %v", err)
	}
}

func TestPostgresAccountRepository_ConcurrentRotationSingleWinner(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	account := createTestAccount(t, repo, "racer")
	if err := repo.SetRefreshToken(ctx, account.ID, "shared"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			err := repo.RotateRefreshToken(ctx, account.ID, "shared", fmt.Sprintf("next-%d", i))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", wins)
	}
}

func TestPostgresRelationRepository_Toggle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	u1 := createTestAccount(t, accounts, "u1")
	u2 := createTestAccount(t, accounts, "u2")
	video := createTestVideo(t, u1.ID)

	repo := NewPostgresRelationRepository(testPool)
	like := func(actor string) models.RelationKey {
		return models.RelationKey{ActorID: actor, TargetID: video.ID, Kind: models.RelationVideoLike}
	}

	steps := []struct {
		actor  string
		active bool
		count  int64
	}{
		{u1.ID, true, 1},
		{u2.ID, true, 2},
		{u1.ID, false, 1},
	}
	for i, step := range steps {
		active, err := repo.AtomicToggle(ctx, like(step.actor))
		if err != nil {
			t.Fatalf("step %d: toggle: %v", i, err)
		}
		count, err := repo.CountLive(ctx, video.ID, models.RelationVideoLike)
		if err != nil {
			t.Fatalf("step %d: count: %v", i, err)
		}
		if active != step.active || count != step.count {
			t.Fatalf("step %d: expected (%v, %d), got (%v, %d)", i, step.active, step.count, active, count)
		}
	}

	liked, err := repo.LikedVideos(ctx, u2.ID)
	if err != nil {
		t.Fatalf("liked videos: %v", err)
	}
	if len(liked) != 1 || liked[0].ID != video.ID || liked[0].LikeCount != 1 {
		t.Fatalf("unexpected liked videos: %+v", liked)
	}

	self := models.RelationKey{ActorID: u1.ID, TargetID: u1.ID, Kind: models.RelationSubscription}
	if _, err := repo.AtomicToggle(ctx, self); err == nil {
		t.Fatalf("expected the database to reject a self subscription")
	}

	if _, err := repo.AtomicToggle(ctx, models.RelationKey{ActorID: u2.ID, TargetID: u1.ID, Kind: models.RelationSubscription}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subscribers, err := repo.Subscribers(ctx, u1.ID)
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if len(subscribers) != 1 || subscribers[0].ID != u2.ID {
		t.Fatalf("unexpected subscribers: %+v", subscribers)
	}
	channels, err := repo.SubscribedChannels(ctx, u2.ID)
	if err != nil {
		t.Fatalf("subscribed channels: %v", err)
	}
	if len(channels) != 1 || channels[0].ID != u1.ID {
		t.Fatalf("unexpected channels: %+v", channels)
	}
}

func TestPostgresRelationRepository_ConcurrentTogglesKeepParity(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	actor := createTestAccount(t, accounts, "toggler")
	target := uuid.NewString()
	key := models.RelationKey{ActorID: actor.ID, TargetID: target, Kind: models.RelationTweetLike}

	repo := NewPostgresRelationRepository(testPool)

	const workers = 9
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				_, err := repo.AtomicToggle(ctx, key)
				if err == nil {
					return
				}
				if !errors.Is(err, ErrContended) && !errors.Is(err, ErrTransient) {
					t.Errorf("toggle: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	count, err := repo.CountLive(ctx, target, models.RelationTweetLike)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != workers%2 {
		t.Fatalf("expected %d live relations, got %d", workers%2, count)
	}
}

func TestPostgresPlaylistRepository_Videos(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	owner := createTestAccount(t, accounts, "curator")
	v1 := createTestVideo(t, owner.ID)
	v2 := createTestVideo(t, owner.ID)

	repo := NewPostgresPlaylistRepository(testPool)
	now := time.Now().UTC()
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		Name:        "favourites",
		Description: "the good ones",
		VideoIDs:    []string{v1.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, playlist); err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	if err := repo.AddVideo(ctx, playlist.ID, v2.ID); err != nil {
		t.Fatalf("add video: %v", err)
	}
	if err := repo.AddVideo(ctx, playlist.ID, v1.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict adding a duplicate, got %v", err)
	}

	fetched, err := repo.FindByID(ctx, playlist.ID)
	if err != nil {
		t.Fatalf("find playlist: %v", err)
	}
	if len(fetched.VideoIDs) != 2 || fetched.VideoIDs[0] != v1.ID || fetched.VideoIDs[1] != v2.ID {
		t.Fatalf("unexpected videos: %v", fetched.VideoIDs)
	}

	if err := repo.RemoveVideo(ctx, playlist.ID, v1.ID); err != nil {
		t.Fatalf("remove video: %v", err)
	}
	if err := repo.RemoveVideo(ctx, playlist.ID, v1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing an absent video, got %v", err)
	}

	videos := NewPostgresVideoRepository(testPool)
	if err := videos.Delete(ctx, v2.ID); err != nil {
		t.Fatalf("delete video: %v", err)
	}
	listed, err := repo.ListByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list playlists: %v", err)
	}
	if len(listed) != 1 || len(listed[0].VideoIDs) != 0 {
		t.Fatalf("expected deleted video to leave the playlist, got %+v", listed)
	}
}

func TestPostgresCommentRepository_ListByVideo(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	owner := createTestAccount(t, accounts, "commenter")
	video := createTestVideo(t, owner.ID)

	repo := NewPostgresCommentRepository(testPool)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		err := repo.Create(ctx, models.Comment{
			ID:        uuid.NewString(),
			VideoID:   video.ID,
			OwnerID:   owner.ID,
			Content:   fmt.Sprintf("comment %d", i),
			CreatedAt: at,
			UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("create comment %d: %v", i, err)
		}
	}

	page, total, err := repo.ListByVideo(ctx, video.ID, models.Page{Number: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if total != 3 || len(page) != 2 || page[0].Content != "comment 2" {
		t.Fatalf("unexpected first page: total=%d %+v", total, page)
	}

	err = repo.Create(ctx, models.Comment{ID: uuid.NewString(), VideoID: uuid.NewString(), OwnerID: owner.ID, Content: "orphan"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound commenting on a missing video, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("set VIDTUBE_INTEGRATION=1 to run repository integration tests")
	}

	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE relations, playlist_videos, playlists, comments, tweets, videos, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestAccount(t *testing.T, repo *PostgresAccountRepository, username string) models.Account {
	t.Helper()
	now := time.Now().UTC()
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		AvatarURL:    "https://cdn.example.com/" + username + ".png",
		PasswordHash: "password-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("create test account: %v", err)
	}
	return account
}

func createTestVideo(t *testing.T, ownerID string) models.Video {
	t.Helper()
	now := time.Now().UTC()
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		VideoURL:     "https://cdn.example.com/video.mp4",
		ThumbnailURL: "https://cdn.example.com/thumb.png",
		Title:        "a video",
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := NewPostgresVideoRepository(testPool).Create(context.Background(), video); err != nil {
		t.Fatalf("create test video: %v", err)
	}
	return video
}
