package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger        *slog.Logger
	Accounts      AccountStore
	Sessions      SessionService
	Hasher        auth.Hasher
	Authenticator *middleware.Authenticator
	Relations     RelationToggler
	Queries       RelationQueries
	Tweets        repositories.TweetRepository
	Comments      repositories.CommentRepository
	Playlists     repositories.PlaylistRepository
	Videos        repositories.VideoRepository
	Storage       storage.ObjectStore
	Database      HealthChecker
	RateLimiter   middleware.RateLimiter
	// RegisterLimit caps registrations per client IP within RegisterWindow. Zero disables it.
	RegisterLimit  int
	RegisterWindow time.Duration
	// Registry receives HTTP metrics and backs /metrics. Nil disables both.
	Registry       *prometheus.Registry
	Production     bool
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

// NewRouter wires every route of the API.
func NewRouter(deps Dependencies) http.Handler {
	rs := responder{Detail: !deps.Production}

	health := HealthHandler{Database: deps.Database}
	users := AuthHandler{
		responder:      rs,
		Accounts:       deps.Accounts,
		Sessions:       deps.Sessions,
		Hasher:         deps.Hasher,
		Storage:        deps.Storage,
		SecureCookies:  deps.Production,
		MaxUploadBytes: deps.MaxUploadBytes,
		NowFunc:        deps.NowFunc,
	}
	likes := LikeHandler{
		responder: rs,
		Relations: deps.Relations,
		Queries:   deps.Queries,
		Videos:    deps.Videos,
		Comments:  deps.Comments,
		Tweets:    deps.Tweets,
	}
	subscriptions := SubscriptionHandler{responder: rs, Relations: deps.Relations, Queries: deps.Queries, Accounts: deps.Accounts}
	tweets := TweetHandler{responder: rs, Tweets: deps.Tweets, NowFunc: deps.NowFunc}
	comments := CommentHandler{responder: rs, Comments: deps.Comments, Videos: deps.Videos, NowFunc: deps.NowFunc}
	playlists := PlaylistHandler{responder: rs, Playlists: deps.Playlists, Videos: deps.Videos, NowFunc: deps.NowFunc}
	videos := VideoHandler{
		responder:      rs,
		Videos:         deps.Videos,
		Storage:        deps.Storage,
		MaxUploadBytes: deps.MaxUploadBytes,
		NowFunc:        deps.NowFunc,
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	if deps.Registry != nil {
		r.Use(middleware.NewMetrics(deps.Registry).Handler)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		rs.fail(req.Context(), w, apperr.NotFound("route not found"))
	})
	r.Get("/healthz", health.Handle)

	requireAuth := func(next http.Handler) http.Handler { return next }
	if deps.Authenticator != nil {
		requireAuth = deps.Authenticator.Require
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", health.Handle)

		r.Route("/users", func(r chi.Router) {
			r.With(middleware.RegistrationLimit(deps.RegisterLimit, deps.RegisterWindow)).Post("/register", users.Register)
			r.With(middleware.RateLimit(deps.RateLimiter, "login")).Post("/login", users.Login)
			r.With(middleware.RateLimit(deps.RateLimiter, "refresh")).Post("/refresh-token", users.Refresh)
			r.With(requireAuth).Post("/logout", users.Logout)
			r.With(requireAuth).Get("/me", users.Me)
		})

		r.Route("/likes", func(r chi.Router) {
			r.Use(requireAuth)
			r.Patch("/video/{videoID}", likes.ToggleVideo)
			r.Patch("/comment/{commentID}", likes.ToggleComment)
			r.Patch("/tweet/{tweetID}", likes.ToggleTweet)
			r.Get("/videos", likes.Liked)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/c/{channelID}", subscriptions.Toggle)
			r.Get("/c/{channelID}", subscriptions.Subscribers)
			r.Get("/u/{subscriberID}", subscriptions.Channels)
		})

		r.Route("/tweets", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", tweets.Create)
			r.Get("/user/{userID}", tweets.ListByUser)
			r.Patch("/{tweetID}", tweets.Update)
			r.Delete("/{tweetID}", tweets.Delete)
		})

		r.Route("/comments", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/video/{videoID}", comments.List)
			r.Post("/video/{videoID}", comments.Create)
			r.Patch("/{commentID}", comments.Update)
			r.Delete("/{commentID}", comments.Delete)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/{playlistID}", playlists.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", playlists.Create)
				r.Get("/user/{userID}", playlists.ListByUser)
				r.Patch("/{playlistID}", playlists.Update)
				r.Delete("/{playlistID}", playlists.Delete)
				r.Patch("/{playlistID}/videos/{videoID}", playlists.AddVideo)
				r.Delete("/{playlistID}/videos/{videoID}", playlists.RemoveVideo)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", videos.List)
			r.Get("/{videoID}", videos.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", videos.Publish)
				r.Patch("/{videoID}", videos.Update)
				r.Delete("/{videoID}", videos.Delete)
				r.Patch("/{videoID}/publish", videos.TogglePublish)
			})
		})
	})

	return r
}
