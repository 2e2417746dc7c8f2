package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
)

const (
	refreshTokenCookie      = "refreshToken"
	duplicateAccountMessage = "user with email or username already exists"
)

// AuthHandler implements registration and session endpoints.
type AuthHandler struct {
	responder
	Accounts AccountStore
	Sessions SessionService
	Hasher   auth.Hasher
	Storage  storage.ObjectStore
	// SecureCookies marks session cookies Secure. Enabled in production.
	SecureCookies  bool
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

// Register handles POST /api/v1/users/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Accounts == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasAccounts", h.Accounts != nil, "hasSessions", h.Sessions != nil)
		h.fail(ctx, w, apperr.Internal("authentication services unavailable", nil))
		return
	}

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		h.fail(ctx, w, err)
		return
	}

	req := registerRequest{
		FullName: formValue(r, "fullName"),
		Username: strings.ToLower(formValue(r, "username")),
		Email:    strings.ToLower(formValue(r, "email")),
		Password: r.FormValue("password"),
	}
	if err := validateStruct(req); err != nil {
		h.fail(ctx, w, err)
		return
	}

	// Uploads happen only once the identity is known to be free. Create still maps
	// ErrConflict for concurrent registrations.
	for _, identifier := range []string{req.Username, req.Email} {
		if err := h.ensureUnclaimed(ctx, identifier); err != nil {
			h.fail(ctx, w, err)
			return
		}
	}

	hashed, err := h.hasher().Hash(req.Password)
	if err != nil {
		h.fail(ctx, w, apperr.Internal("failed to secure password", err))
		return
	}

	avatarURL, err := saveUpload(ctx, h.Storage, r, "avatar", "avatars", true)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	coverURL, err := saveUpload(ctx, h.Storage, r, "coverImage", "covers", false)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	now := h.now()
	account := models.Account{
		ID:            uuid.NewString(),
		Username:      req.Username,
		Email:         req.Email,
		FullName:      req.FullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			h.fail(ctx, w, apperr.Conflict(duplicateAccountMessage))
			return
		}
		h.fail(ctx, w, apperr.Internal("failed to create account", err))
		return
	}

	tokens, err := h.Sessions.Issue(ctx, account)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	logger.Info("account registered", "accountId", account.ID)
	setSessionCookies(w, tokens, h.SecureCookies)
	respondOK(ctx, w, http.StatusCreated, "User registered successfully", auth.LoginResult{Tokens: tokens, Account: account.Summary()})
}

func (h AuthHandler) ensureUnclaimed(ctx context.Context, identifier string) error {
	_, err := h.Accounts.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		return apperr.Conflict(duplicateAccountMessage)
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	default:
		return apperr.Internal("failed to check account availability", err)
	}
}

// Login handles POST /api/v1/users/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err)
		return
	}

	result, err := h.Sessions.Login(ctx, req.identifier(), req.Password)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	setSessionCookies(w, result.Tokens, h.SecureCookies)
	respondOK(ctx, w, http.StatusOK, "User logged in successfully", result)
}

// Refresh handles POST /api/v1/users/refresh-token. The cookie wins over the body.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		presented = strings.TrimSpace(cookie.Value)
	}
	if presented == "" && r.Body != nil && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			h.fail(ctx, w, err)
			return
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}
	if presented == "" {
		h.fail(ctx, w, apperr.Unauthorized("unauthorized request"))
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, presented)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	setSessionCookies(w, tokens, h.SecureCookies)
	respondOK(ctx, w, http.StatusOK, "Access token refreshed", tokens)
}

// Logout handles POST /api/v1/users/logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.Sessions.Logout(ctx, identity.ID); err != nil {
		h.fail(ctx, w, err)
		return
	}

	clearSessionCookies(w, h.SecureCookies)
	respondOK(ctx, w, http.StatusOK, "User logged out", nil)
}

// Me handles GET /api/v1/users/me.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := currentIdentity(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	account, err := findOrNotFound(ctx, h.Accounts.FindByID, identity.ID, "user")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	respondOK(ctx, w, http.StatusOK, "Current user fetched successfully", account.Summary())
}

type registerRequest struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Username string `json:"username" validate:"required,alphanum,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password" validate:"required"`
}

func (req loginRequest) identifier() string {
	for _, candidate := range []string{req.Identifier, req.Username, req.Email} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h AuthHandler) hasher() auth.Hasher {
	if h.Hasher != nil {
		return h.Hasher
	}
	return auth.NewBcryptHasher(auth.DefaultHashCost)
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func setSessionCookies(w http.ResponseWriter, tokens models.SessionTokens, secure bool) {
	http.SetCookie(w, sessionCookie(middleware.AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt, secure))
	http.SetCookie(w, sessionCookie(refreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt, secure))
}

func clearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		cookie := sessionCookie(name, "", time.Unix(0, 0), secure)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func sessionCookie(name, value string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
