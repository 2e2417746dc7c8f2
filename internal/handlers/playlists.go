package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// PlaylistHandler serves playlist endpoints.
type PlaylistHandler struct {
	responder
	Playlists repositories.PlaylistRepository
	Videos    repositories.VideoRepository
	NowFunc   func() time.Time
}

type createPlaylistRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=1000"`
}

type updatePlaylistRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Videos      []string `json:"videos" validate:"omitempty,unique,dive,uuid"`
}

// Create handles POST /api/v1/playlists.
func (h PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	var req createPlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err)
		return
	}
	name, description := cleanText(req.Name), cleanText(req.Description)
	if name == "" || description == "" {
		h.fail(ctx, w, apperr.InvalidArgument("name and description are required"))
		return
	}

	now := nowOr(h.NowFunc)
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		OwnerID:     identity.ID,
		Name:        name,
		Description: description,
		VideoIDs:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Playlists.Create(ctx, playlist); err != nil {
		h.fail(ctx, w, apperr.Internal("failed to create playlist", err))
		return
	}

	respondOK(ctx, w, http.StatusCreated, "Playlist created successfully", playlist)
}

// ListByUser handles GET /api/v1/playlists/user/{userID}.
func (h PlaylistHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := pathID(r, "userID", "user")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	playlists, err := h.Playlists.ListByOwner(ctx, userID)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch playlists", err))
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}

	respondOK(ctx, w, http.StatusOK, "Playlists fetched successfully", playlists)
}

// Get handles GET /api/v1/playlists/{playlistID}.
func (h PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, err := pathID(r, "playlistID", "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	playlist, err := findOrNotFound(ctx, h.Playlists.FindByID, playlistID, "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	respondOK(ctx, w, http.StatusOK, "Playlist fetched successfully", playlist)
}

// Update handles PATCH /api/v1/playlists/{playlistID}.
func (h PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, err := pathID(r, "playlistID", "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	playlist, err := loadOwned(ctx, h.Playlists.FindByID, playlistID, "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	var req updatePlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if req.Name != nil {
		if playlist.Name = cleanText(*req.Name); playlist.Name == "" {
			h.fail(ctx, w, apperr.InvalidArgument("name must not be empty"))
			return
		}
	}
	if req.Description != nil {
		if playlist.Description = cleanText(*req.Description); playlist.Description == "" {
			h.fail(ctx, w, apperr.InvalidArgument("description must not be empty"))
			return
		}
	}

	// A nil slice leaves the stored videos untouched.
	playlist.VideoIDs = nil
	if req.Videos != nil {
		for _, videoID := range req.Videos {
			if _, err := findOrNotFound(ctx, h.Videos.FindByID, strings.TrimSpace(videoID), "video"); err != nil {
				h.fail(ctx, w, err)
				return
			}
		}
		playlist.VideoIDs = req.Videos
	}

	playlist.UpdatedAt = nowOr(h.NowFunc)
	if err := h.Playlists.Update(ctx, playlist); err != nil {
		h.fail(ctx, w, mutationError("playlist", "update", err))
		return
	}

	h.respondPlaylist(w, r, playlistID, "Playlist updated successfully")
}

// Delete handles DELETE /api/v1/playlists/{playlistID}.
func (h PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, err := pathID(r, "playlistID", "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Playlists.FindByID, playlistID, "playlist"); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.Playlists.Delete(ctx, playlistID); err != nil {
		h.fail(ctx, w, mutationError("playlist", "delete", err))
		return
	}

	respondOK(ctx, w, http.StatusOK, "Playlist deleted successfully", nil)
}

// AddVideo handles PATCH /api/v1/playlists/{playlistID}/videos/{videoID}.
func (h PlaylistHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, videoID, err := playlistVideoIDs(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Playlists.FindByID, playlistID, "playlist"); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := findOrNotFound(ctx, h.Videos.FindByID, videoID, "video"); err != nil {
		h.fail(ctx, w, err)
		return
	}

	if err := h.Playlists.AddVideo(ctx, playlistID, videoID); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			h.fail(ctx, w, apperr.InvalidArgument("video already exists in playlist"))
			return
		}
		h.fail(ctx, w, mutationError("playlist", "add video to", err))
		return
	}

	h.respondPlaylist(w, r, playlistID, "Video added to playlist")
}

// RemoveVideo handles DELETE /api/v1/playlists/{playlistID}/videos/{videoID}.
func (h PlaylistHandler) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlistID, videoID, err := playlistVideoIDs(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := loadOwned(ctx, h.Playlists.FindByID, playlistID, "playlist"); err != nil {
		h.fail(ctx, w, err)
		return
	}

	if err := h.Playlists.RemoveVideo(ctx, playlistID, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			h.fail(ctx, w, apperr.NotFound("video not found in playlist"))
			return
		}
		h.fail(ctx, w, apperr.Internal("failed to remove video from playlist", err))
		return
	}

	h.respondPlaylist(w, r, playlistID, "Video removed from playlist")
}

func (h PlaylistHandler) respondPlaylist(w http.ResponseWriter, r *http.Request, playlistID, message string) {
	ctx := r.Context()
	playlist, err := findOrNotFound(ctx, h.Playlists.FindByID, playlistID, "playlist")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, message, playlist)
}

func playlistVideoIDs(r *http.Request) (string, string, error) {
	playlistID, err := pathID(r, "playlistID", "playlist")
	if err != nil {
		return "", "", err
	}
	videoID, err := pathID(r, "videoID", "video")
	if err != nil {
		return "", "", err
	}
	return playlistID, videoID, nil
}
