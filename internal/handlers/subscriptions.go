package handlers

import (
	"net/http"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
)

// SubscriptionHandler toggles and lists channel subscriptions.
type SubscriptionHandler struct {
	responder
	Relations RelationToggler
	Queries   RelationQueries
	Accounts  AccountStore
}

type subscriptionResponse struct {
	Subscribed      bool  `json:"subscribed"`
	SubscriberCount int64 `json:"subscriberCount"`
}

// Toggle handles POST /api/v1/subscriptions/c/{channelID}.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	channelID, err := pathID(r, "channelID", "channel")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if _, err := findOrNotFound(ctx, h.Accounts.FindByID, channelID, "channel"); err != nil {
		h.fail(ctx, w, err)
		return
	}

	result, err := h.Relations.Toggle(ctx, identity.ID, channelID, models.RelationSubscription)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	message := "Unsubscribed successfully"
	if result.Active {
		message = "Subscribed successfully"
	}
	respondOK(ctx, w, http.StatusOK, message, subscriptionResponse{Subscribed: result.Active, SubscriberCount: result.LiveCount})
}

// Subscribers handles GET /api/v1/subscriptions/c/{channelID}.
func (h SubscriptionHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channelID, err := pathID(r, "channelID", "channel")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	subscribers, err := h.Queries.Subscribers(ctx, channelID)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch subscribers", err))
		return
	}
	if subscribers == nil {
		subscribers = []models.AccountSummary{}
	}

	respondOK(ctx, w, http.StatusOK, "Subscribers fetched successfully", subscribers)
}

// Channels handles GET /api/v1/subscriptions/u/{subscriberID}.
func (h SubscriptionHandler) Channels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subscriberID, err := pathID(r, "subscriberID", "subscriber")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	channels, err := h.Queries.SubscribedChannels(ctx, subscriberID)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to fetch subscribed channels", err))
		return
	}
	if channels == nil {
		channels = []models.AccountSummary{}
	}

	respondOK(ctx, w, http.StatusOK, "Subscribed channels fetched successfully", channels)
}
