package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const maxCommentLength = 500

// CommentHandler serves comments attached to videos.
type CommentHandler struct {
	responder
	Comments repositories.CommentRepository
	Videos   repositories.VideoRepository
	NowFunc  func() time.Time
}

// List handles GET /api/v1/comments/video/{videoID}, newest first.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	comments, total, err := h.Comments.ListByVideo(ctx, videoID, page)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch comments", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Comments fetched successfully", newPageResult(comments, page, total))
}

// Create handles POST /api/v1/comments/video/{videoID}.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	content, err := decodeText(r, maxCommentLength, "comment")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := findOrNotFound(ctx, h.Videos.FindByID, videoID, "video"); err != nil {
		h.fail(ctx, w, err)
		return
	}

	now := nowOr(h.NowFunc)
	comment := models.Comment{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		OwnerID:   identity.ID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Comments.Create(ctx, comment); err != nil {
		h.fail(ctx, w, mutationError("video", "add comment to", err))
		return
	}

	respondOK(ctx, w, http.StatusCreated, "Comment added successfully", comment)
}

// Update handles PATCH /api/v1/comments/{commentID}.
func (h CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commentID, err := pathID(r, "commentID", "comment")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	comment, err := loadOwned(ctx, h.Comments.FindByID, commentID, "comment")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	content, err := decodeText(r, maxCommentLength, "comment")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	comment.Content = content
	comment.UpdatedAt = nowOr(h.NowFunc)
	if err := h.Comments.Update(ctx, comment); err != nil {
		h.fail(ctx, w, mutationError("comment", "update", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Comment updated successfully", comment)
}

// Delete handles DELETE /api/v1/comments/{commentID}.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commentID, err := pathID(r, "commentID", "comment")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Comments.FindByID, commentID, "comment"); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.Comments.Delete(ctx, commentID); err != nil {
		h.fail(ctx, w, mutationError("comment", "delete", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Comment deleted successfully", nil)
}
