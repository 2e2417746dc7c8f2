package handlers

import (
	"context"
	"net/http"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/relations"
	"github.com/vidtube/backend/internal/repositories"
)

// LikeHandler toggles and lists likes.
type LikeHandler struct {
	responder
	Relations RelationToggler
	Queries   RelationQueries
	Videos    repositories.VideoRepository
	Comments  repositories.CommentRepository
	Tweets    repositories.TweetRepository
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"likeCount"`
}

// ToggleVideo handles PATCH /api/v1/likes/video/{videoID}.
func (h LikeHandler) ToggleVideo(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "videoID", "video", models.RelationVideoLike, func(ctx context.Context, id string) error {
		_, err := findOrNotFound(ctx, h.Videos.FindByID, id, "video")
		return err
	})
}

// ToggleComment handles PATCH /api/v1/likes/comment/{commentID}.
func (h LikeHandler) ToggleComment(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "commentID", "comment", models.RelationCommentLike, func(ctx context.Context, id string) error {
		_, err := findOrNotFound(ctx, h.Comments.FindByID, id, "comment")
		return err
	})
}

// ToggleTweet handles PATCH /api/v1/likes/tweet/{tweetID}.
func (h LikeHandler) ToggleTweet(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "tweetID", "tweet", models.RelationTweetLike, func(ctx context.Context, id string) error {
		_, err := findOrNotFound(ctx, h.Tweets.FindByID, id, "tweet")
		return err
	})
}

func (h LikeHandler) toggle(w http.ResponseWriter, r *http.Request, param, noun string, kind models.RelationKind, exists func(context.Context, string) error) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	targetID, err := pathID(r, param, noun)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := exists(ctx, targetID); err != nil {
		h.fail(ctx, w, err)
		return
	}

	result, err := h.Relations.Toggle(ctx, identity.ID, targetID, kind)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	respondOK(ctx, w, http.StatusOK, likeMessage(noun, result), likeResponse{Liked: result.Active, LikeCount: result.LiveCount})
}

func likeMessage(noun string, result relations.Result) string {
	if result.Active {
		return noun + " liked successfully"
	}
	return noun + " unliked successfully"
}

// Liked handles GET /api/v1/likes/videos.
func (h LikeHandler) Liked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	videos, err := h.Queries.LikedVideos(ctx, identity.ID)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch liked videos", err))
		return
	}
	if videos == nil {
		videos = []models.LikedVideo{}
	}

	respondOK(ctx, w, http.StatusOK, "Liked videos fetched successfully", videos)
}
