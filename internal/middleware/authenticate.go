package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// AccessTokenCookie is the cookie the access grant travels in.
const AccessTokenCookie = "accessToken"

// AccountLookup resolves the subject of a verified access grant.
type AccountLookup interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
}

// Authenticator resolves the caller of a request from its access grant.
type Authenticator struct {
	Tokens   *auth.TokenCodec
	Accounts AccountLookup
	// Timeout bounds the whole identity check. Zero disables the bound.
	Timeout time.Duration
	// WithDetail includes internal error causes in failure bodies.
	WithDetail bool
}

// Authenticate verifies the request credential and loads the account it names.
func (a *Authenticator) Authenticate(r *http.Request) (models.Identity, error) {
	token := credential(r)
	if token == "" {
		return models.Identity{}, apperr.Unauthorized("unauthorized request")
	}

	ctx := r.Context()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	claims, err := a.Tokens.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "access token expired", err)
		}
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "invalid access token", err)
	}

	account, err := a.Accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "authentication timed out", err)
		case errors.Is(err, repositories.ErrNotFound):
			return models.Identity{}, apperr.NotFound("user not found")
		default:
			return models.Identity{}, apperr.Internal("failed to load account", err)
		}
	}
	if ctx.Err() != nil {
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "authentication timed out", ctx.Err())
	}

	return account.Identity(), nil
}

// Require rejects unauthenticated requests and attaches the identity for downstream handlers.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r)
		if err != nil {
			logger := logging.FromContext(r.Context())
			if apperr.KindOf(err) == apperr.KindInternal {
				logger.Error("authentication failed", logging.Err(err))
			} else {
				logger.Warn("authentication rejected", "kind", apperr.KindOf(err), logging.Err(err))
			}
			writeError(w, err, a.WithDetail)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("account_id", identity.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func credential(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}
