// Package relations implements toggleable membership facts: likes on videos, comments and
// tweets, and channel subscriptions.
package relations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/events"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const (
	DefaultMaxRetries  = 5
	defaultBaseBackoff = 10 * time.Millisecond
	defaultMaxBackoff  = 250 * time.Millisecond
)

// Store persists relation facts.
type Store interface {
	// AtomicToggle flips the fact for key in one indivisible step and reports the new state.
	// It returns repositories.ErrContended when a concurrent writer flipped the same key mid-way.
	AtomicToggle(ctx context.Context, key models.RelationKey) (bool, error)
	CountLive(ctx context.Context, targetID string, kind models.RelationKind) (int64, error)
	Exists(ctx context.Context, key models.RelationKey) (bool, error)
}

// Result is the post-toggle state observed by the caller.
type Result struct {
	Active    bool  `json:"active"`
	LiveCount int64 `json:"liveCount"`
}

// Options tune retry behaviour and side channels of an Engine.
type Options struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Publisher   events.Publisher
	Registerer  prometheus.Registerer
}

// Engine serialises toggles through the store's atomic primitive.
type Engine struct {
	store     Store
	opts      Options
	publisher events.Publisher
	toggles   *prometheus.CounterVec
}

// NewEngine constructs an Engine. Zero options fall back to package defaults.
func NewEngine(store Store, opts Options) *Engine {
	if store == nil {
		panic("relations: store must not be nil")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Engine{
		store:     store,
		opts:      opts,
		publisher: publisher,
		toggles:   registerCounter(opts.Registerer),
	}
}

// Toggle flips the relation between actorID and targetID and returns the new state with the
// live count of the target. Self-subscription is rejected before the store is touched.
func (e *Engine) Toggle(ctx context.Context, actorID, targetID string, kind models.RelationKind) (Result, error) {
	key, err := newKey(actorID, targetID, kind)
	if err != nil {
		return Result{}, err
	}

	ctx, span := logging.StartSpan(ctx, "relations.toggle")
	defer span.End()

	active, err := e.flip(ctx, key)
	if err != nil {
		span.Fail(err)
		return Result{}, err
	}

	count, err := e.store.CountLive(ctx, key.TargetID, key.Kind)
	if err != nil {
		span.Fail(err)
		return Result{}, apperr.Internal("failed to count relations", err)
	}

	e.toggles.WithLabelValues(string(key.Kind), stateLabel(active)).Inc()
	e.publish(ctx, key, active, count)

	return Result{Active: active, LiveCount: count}, nil
}

// Status reports whether the relation currently exists.
func (e *Engine) Status(ctx context.Context, actorID, targetID string, kind models.RelationKind) (bool, error) {
	key, err := newKey(actorID, targetID, kind)
	if err != nil {
		return false, err
	}
	ok, err := e.store.Exists(ctx, key)
	if err != nil {
		return false, apperr.Internal("failed to read relation", err)
	}
	return ok, nil
}

// Count returns the number of live relations pointing at targetID.
func (e *Engine) Count(ctx context.Context, targetID string, kind models.RelationKind) (int64, error) {
	if !kind.Valid() {
		return 0, apperr.InvalidArgument("unknown relation kind")
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return 0, apperr.InvalidArgument("invalid target id")
	}
	count, err := e.store.CountLive(ctx, targetID, kind)
	if err != nil {
		return 0, apperr.Internal("failed to count relations", err)
	}
	return count, nil
}

func (e *Engine) flip(ctx context.Context, key models.RelationKey) (bool, error) {
	logger := logging.FromContext(ctx)
	backoff := e.opts.BaseBackoff

	for attempt := 0; ; attempt++ {
		active, err := e.store.AtomicToggle(ctx, key)
		if err == nil {
			return active, nil
		}

		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return false, apperr.Wrap(apperr.KindNotFound, "user not found", err)
		case !errors.Is(err, repositories.ErrContended) && !errors.Is(err, repositories.ErrTransient):
			return false, apperr.Internal("failed to toggle relation", err)
		case attempt >= e.opts.MaxRetries:
			logger.Warn("toggle retries exhausted", "kind", key.Kind, "attempts", attempt+1, logging.Err(err))
			return false, apperr.Wrap(apperr.KindConflict, "relation is being modified concurrently, try again", err)
		}

		logger.Debug("toggle contended, retrying", "kind", key.Kind, "attempt", attempt+1, logging.Err(err))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, apperr.Internal("toggle canceled", ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if backoff > e.opts.MaxBackoff {
			backoff = e.opts.MaxBackoff
		}
	}
}

func (e *Engine) publish(ctx context.Context, key models.RelationKey, active bool, count int64) {
	err := e.publisher.Publish(ctx, events.Event{
		Type:      events.TypeRelationToggled,
		ActorID:   key.ActorID,
		TargetID:  key.TargetID,
		Kind:      string(key.Kind),
		Active:    active,
		LiveCount: count,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("publish relation event failed", "kind", key.Kind, logging.Err(err))
	}
}

func newKey(actorID, targetID string, kind models.RelationKind) (models.RelationKey, error) {
	if actorID == "" {
		return models.RelationKey{}, apperr.Unauthorized("unauthorized request")
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return models.RelationKey{}, apperr.InvalidArgument("invalid user id")
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return models.RelationKey{}, apperr.InvalidArgument(targetLabel(kind) + " id is invalid")
	}
	if !kind.Valid() {
		return models.RelationKey{}, apperr.InvalidArgument("unknown relation kind")
	}
	if kind == models.RelationSubscription && actorID == targetID {
		return models.RelationKey{}, apperr.InvalidArgument("you cannot subscribe to your own channel")
	}
	return models.RelationKey{ActorID: actorID, TargetID: targetID, Kind: kind}, nil
}

func targetLabel(kind models.RelationKind) string {
	switch kind {
	case models.RelationVideoLike:
		return "video"
	case models.RelationCommentLike:
		return "comment"
	case models.RelationTweetLike:
		return "tweet"
	case models.RelationSubscription:
		return "channel"
	}
	return "target"
}

func stateLabel(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

func registerCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidtube",
		Name:      "relation_toggles_total",
		Help:      "Committed relation toggles by kind and resulting state.",
	}, []string{"kind", "state"})
	if reg == nil {
		return counter
	}
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
