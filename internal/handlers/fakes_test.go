package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/relations"
	"github.com/vidtube/backend/internal/repositories"
)

const testPassword = "password123"

type fakeTweets struct {
	mu     sync.Mutex
	tweets map[string]models.Tweet
}

func (f *fakeTweets) Create(_ context.Context, tweet models.Tweet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tweets[tweet.ID] = tweet
	return nil
}

func (f *fakeTweets) FindByID(_ context.Context, id string) (models.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tweet, ok := f.tweets[id]
	if !ok {
		return models.Tweet{}, repositories.ErrNotFound
	}
	return tweet, nil
}

func (f *fakeTweets) ListByOwner(_ context.Context, ownerID string) ([]models.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Tweet
	for _, tweet := range f.tweets {
		if tweet.OwnerID == ownerID {
			out = append(out, tweet)
		}
	}
	return out, nil
}

func (f *fakeTweets) Update(_ context.Context, tweet models.Tweet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tweets[tweet.ID]; !ok {
		return repositories.ErrNotFound
	}
	f.tweets[tweet.ID] = tweet
	return nil
}

func (f *fakeTweets) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tweets[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.tweets, id)
	return nil
}

type fakeComments struct {
	mu       sync.Mutex
	comments map[string]models.Comment
}

func (f *fakeComments) Create(_ context.Context, comment models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[comment.ID] = comment
	return nil
}

func (f *fakeComments) FindByID(_ context.Context, id string) (models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment, ok := f.comments[id]
	if !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	return comment, nil
}

func (f *fakeComments) ListByVideo(_ context.Context, videoID string, page models.Page) ([]models.Comment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Comment
	for _, comment := range f.comments {
		if comment.VideoID == videoID {
			all = append(all, comment)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (f *fakeComments) Update(_ context.Context, comment models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[comment.ID] = comment
	return nil
}

func (f *fakeComments) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, id)
	return nil
}

type fakePlaylists struct {
	mu        sync.Mutex
	playlists map[string]models.Playlist
}

func (f *fakePlaylists) Create(_ context.Context, playlist models.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[playlist.ID] = playlist
	return nil
}

func (f *fakePlaylists) FindByID(_ context.Context, id string) (models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	playlist, ok := f.playlists[id]
	if !ok {
		return models.Playlist{}, repositories.ErrNotFound
	}
	playlist.VideoIDs = append([]string{}, playlist.VideoIDs...)
	return playlist, nil
}

func (f *fakePlaylists) ListByOwner(_ context.Context, ownerID string) ([]models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Playlist
	for _, playlist := range f.playlists {
		if playlist.OwnerID == ownerID {
			out = append(out, playlist)
		}
	}
	return out, nil
}

func (f *fakePlaylists) Update(_ context.Context, playlist models.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.playlists[playlist.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if playlist.VideoIDs == nil {
		playlist.VideoIDs = stored.VideoIDs
	}
	f.playlists[playlist.ID] = playlist
	return nil
}

func (f *fakePlaylists) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playlists, id)
	return nil
}

func (f *fakePlaylists) AddVideo(_ context.Context, playlistID, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	playlist, ok := f.playlists[playlistID]
	if !ok {
		return repositories.ErrNotFound
	}
	for _, existing := range playlist.VideoIDs {
		if existing == videoID {
			return repositories.ErrConflict
		}
	}
	playlist.VideoIDs = append(playlist.VideoIDs, videoID)
	f.playlists[playlistID] = playlist
	return nil
}

func (f *fakePlaylists) RemoveVideo(_ context.Context, playlistID, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	playlist, ok := f.playlists[playlistID]
	if !ok {
		return repositories.ErrNotFound
	}
	for i, existing := range playlist.VideoIDs {
		if existing == videoID {
			playlist.VideoIDs = append(playlist.VideoIDs[:i:i], playlist.VideoIDs[i+1:]...)
			f.playlists[playlistID] = playlist
			return nil
		}
	}
	return repositories.ErrNotFound
}

type fakeVideos struct {
	mu     sync.Mutex
	videos map[string]models.Video
}

func (f *fakeVideos) Create(_ context.Context, video models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[video.ID] = video
	return nil
}

func (f *fakeVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (f *fakeVideos) ListPublished(_ context.Context, page models.Page) ([]models.Video, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Video
	for _, video := range f.videos {
		if video.Published {
			out = append(out, video)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeVideos) Update(_ context.Context, video models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[video.ID] = video
	return nil
}

func (f *fakeVideos) SetPublished(_ context.Context, id string, published bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	video.Published = published
	video.UpdatedAt = at
	f.videos[id] = video
	return nil
}

func (f *fakeVideos) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.videos, id)
	return nil
}

type fakeStorage struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *fakeStorage) Save(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = data
	return "https://cdn.test/" + key, nil
}

type fakeQueries struct{}

func (fakeQueries) Subscribers(context.Context, string) ([]models.AccountSummary, error) {
	return nil, nil
}

func (fakeQueries) SubscribedChannels(context.Context, string) ([]models.AccountSummary, error) {
	return nil, nil
}

func (fakeQueries) LikedVideos(context.Context, string) ([]models.LikedVideo, error) {
	return nil, nil
}

// testEnv runs requests through the full router with in-memory collaborators.
type testEnv struct {
	router    http.Handler
	accounts  *auth.InMemoryAccountStore
	codec     *auth.TokenCodec
	relations *relations.MemoryStore
	tweets    *fakeTweets
	comments  *fakeComments
	playlists *fakePlaylists
	videos    *fakeVideos
	storage   *fakeStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "handlers-access",
		RefreshSecret: "handlers-refresh",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "vidtube-test",
	})
	require.NoError(t, err)

	env := &testEnv{
		accounts:  auth.NewInMemoryAccountStore(),
		codec:     codec,
		relations: relations.NewMemoryStore(),
		tweets:    &fakeTweets{tweets: map[string]models.Tweet{}},
		comments:  &fakeComments{comments: map[string]models.Comment{}},
		playlists: &fakePlaylists{playlists: map[string]models.Playlist{}},
		videos:    &fakeVideos{videos: map[string]models.Video{}},
		storage:   &fakeStorage{saved: map[string][]byte{}},
	}

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	registry := prometheus.NewRegistry()
	env.router = NewRouter(Dependencies{
		Accounts:      env.accounts,
		Sessions:      auth.NewManager(env.accounts, hasher, codec),
		Hasher:        hasher,
		Authenticator: &middleware.Authenticator{Tokens: codec, Accounts: env.accounts, Timeout: time.Second},
		Relations:     relations.NewEngine(env.relations, relations.Options{Registerer: registry}),
		Queries:       fakeQueries{},
		Tweets:        env.tweets,
		Comments:      env.comments,
		Playlists:     env.playlists,
		Videos:        env.videos,
		Storage:       env.storage,
		RateLimiter:   middleware.NewIPRateLimiter(100, time.Second, 100, time.Minute),
		Registry:      registry,
	})
	return env
}

func (e *testEnv) createAccount(t *testing.T, username string) models.Account {
	t.Helper()
	hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash(testPassword)
	require.NoError(t, err)
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		AvatarURL:    "https://cdn.test/avatars/" + username + ".png",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.accounts.Create(context.Background(), account))
	return account
}

func (e *testEnv) token(t *testing.T, account models.Account) string {
	t.Helper()
	token, _, err := e.codec.MintAccess(account.Identity())
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedVideo(owner models.Account, published bool) models.Video {
	video := models.Video{
		ID:        uuid.NewString(),
		OwnerID:   owner.ID,
		Title:     "clip",
		VideoURL:  "https://cdn.test/videos/clip.mp4",
		Published: published,
		CreatedAt: time.Now().UTC(),
	}
	e.videos.videos[video.ID] = video
	return video
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) testResponse {
	t.Helper()
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}
