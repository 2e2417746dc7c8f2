package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const maxTweetLength = 280

// TweetHandler serves tweet endpoints.
type TweetHandler struct {
	responder
	Tweets  repositories.TweetRepository
	NowFunc func() time.Time
}

type contentRequest struct {
	Content string `json:"content" validate:"required"`
}

// Create handles POST /api/v1/tweets.
func (h TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	content, err := decodeText(r, maxTweetLength, "tweet")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	now := nowOr(h.NowFunc)
	tweet := models.Tweet{ID: uuid.NewString(), OwnerID: identity.ID, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := h.Tweets.Create(ctx, tweet); err != nil {
		h.fail(ctx, w, apperr.Internal("failed to create tweet", err))
		return
	}

	respondOK(ctx, w, http.StatusCreated, "Tweet created successfully", tweet)
}

// ListByUser handles GET /api/v1/tweets/user/{userID}.
func (h TweetHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := pathID(r, "userID", "user")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	tweets, err := h.Tweets.ListByOwner(ctx, userID)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch tweets", err))
		return
	}
	if tweets == nil {
		tweets = []models.Tweet{}
	}

	respondOK(ctx, w, http.StatusOK, "Tweets fetched successfully", tweets)
}

// Update handles PATCH /api/v1/tweets/{tweetID}.
func (h TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweetID, err := pathID(r, "tweetID", "tweet")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	tweet, err := loadOwned(ctx, h.Tweets.FindByID, tweetID, "tweet")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	content, err := decodeText(r, maxTweetLength, "tweet")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	tweet.Content = content
	tweet.UpdatedAt = nowOr(h.NowFunc)
	if err := h.Tweets.Update(ctx, tweet); err != nil {
		h.fail(ctx, w, mutationError("tweet", "update", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Tweet updated successfully", tweet)
}

// Delete handles DELETE /api/v1/tweets/{tweetID}.
func (h TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweetID, err := pathID(r, "tweetID", "tweet")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Tweets.FindByID, tweetID, "tweet"); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.Tweets.Delete(ctx, tweetID); err != nil {
		h.fail(ctx, w, mutationError("tweet", "delete", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Tweet deleted successfully", nil)
}

// decodeText reads a {"content": ...} body, strips markup and enforces limit.
func decodeText(r *http.Request, limit int, noun string) (string, error) {
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	content := cleanText(req.Content)
	if content == "" {
		return "", apperr.InvalidArgument(noun + " content is required")
	}
	if len([]rune(content)) > limit {
		return "", apperr.InvalidArgument(noun + " content is too long")
	}
	return content, nil
}

// mutationError maps a repository failure on an already authorised resource.
func mutationError(noun, verb string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound(noun + " not found")
	}
	return apperr.Internal("failed to "+verb+" "+noun, err)
}

func nowOr(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now().UTC()
}
