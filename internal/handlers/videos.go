package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
)

// VideoHandler provides endpoints for publishing and browsing videos.
type VideoHandler struct {
	responder
	Videos         repositories.VideoRepository
	Storage        storage.ObjectStore
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type videoDetails struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
}

type videoPatch struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

type publishStatus struct {
	Published bool `json:"isPublished"`
}

// List handles GET /api/v1/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := pageFromQuery(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	videos, total, err := h.Videos.ListPublished(ctx, page)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch videos", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Videos fetched successfully", newPageResult(videos, page, total))
}

// Get handles GET /api/v1/videos/{videoID}. Unpublished videos read as missing.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	video, err := findOrNotFound(ctx, h.Videos.FindByID, videoID, "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if !video.Published {
		h.fail(ctx, w, apperr.NotFound("video not found"))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Video fetched successfully", video)
}

// Publish handles POST /api/v1/videos.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		h.fail(ctx, w, err)
		return
	}

	details := videoDetails{Title: cleanText(formValue(r, "title")), Description: cleanText(formValue(r, "description"))}
	if err := validateStruct(details); err != nil {
		h.fail(ctx, w, err)
		return
	}
	duration, err := parseDuration(formValue(r, "duration"))
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	videoURL, err := saveUpload(ctx, h.Storage, r, "videoFile", "videos", true)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	thumbnailURL, err := saveUpload(ctx, h.Storage, r, "thumbnail", "thumbnails", true)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	now := nowOr(h.NowFunc)
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      identity.ID,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Title:        details.Title,
		Description:  details.Description,
		Duration:     duration,
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Videos.Create(ctx, video); err != nil {
		h.fail(ctx, w, apperr.Internal("failed to publish video", err))
		return
	}

	respondOK(ctx, w, http.StatusCreated, "Video published successfully", video)
}

// Update handles PATCH /api/v1/videos/{videoID}. It accepts JSON, or a multipart form when a new
// thumbnail is uploaded.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	video, err := loadOwned(ctx, h.Videos.FindByID, videoID, "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	var patch videoPatch
	multipartBody := isMultipart(r)
	if multipartBody {
		if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
			h.fail(ctx, w, err)
			return
		}
		if _, ok := r.MultipartForm.Value["title"]; ok {
			title := formValue(r, "title")
			patch.Title = &title
		}
		if _, ok := r.MultipartForm.Value["description"]; ok {
			description := formValue(r, "description")
			patch.Description = &description
		}
		if err := validateStruct(patch); err != nil {
			h.fail(ctx, w, err)
			return
		}
	} else if err := decodeJSON(r, &patch); err != nil {
		h.fail(ctx, w, err)
		return
	}

	if patch.Title != nil {
		if video.Title = cleanText(*patch.Title); video.Title == "" {
			h.fail(ctx, w, apperr.InvalidArgument("title must not be empty"))
			return
		}
	}
	if patch.Description != nil {
		if video.Description = cleanText(*patch.Description); video.Description == "" {
			h.fail(ctx, w, apperr.InvalidArgument("description must not be empty"))
			return
		}
	}
	if multipartBody {
		thumbnailURL, err := saveUpload(ctx, h.Storage, r, "thumbnail", "thumbnails", false)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		if thumbnailURL != "" {
			video.ThumbnailURL = thumbnailURL
		}
	}

	video.UpdatedAt = nowOr(h.NowFunc)
	if err := h.Videos.Update(ctx, video); err != nil {
		h.fail(ctx, w, mutationError("video", "update", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Video updated successfully", video)
}

// Delete handles DELETE /api/v1/videos/{videoID}. Comments and likes on the video go with it.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Videos.FindByID, videoID, "video"); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.Videos.Delete(ctx, videoID); err != nil {
		h.fail(ctx, w, mutationError("video", "delete", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Video deleted successfully", nil)
}

// TogglePublish handles PATCH /api/v1/videos/{videoID}/publish.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	video, err := loadOwned(ctx, h.Videos.FindByID, videoID, "video")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	published := !video.Published
	if err := h.Videos.SetPublished(ctx, videoID, published, nowOr(h.NowFunc)); err != nil {
		h.fail(ctx, w, mutationError("video", "update", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Video publish status toggled", publishStatus{Published: published})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseDuration(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return 0, apperr.InvalidArgument("duration must be a non-negative number of seconds")
	}
	return seconds, nil
}
