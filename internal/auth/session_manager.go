package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// AccountStore persists accounts and the single refresh grant each one may hold.
type AccountStore interface {
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	SetRefreshToken(ctx context.Context, accountID, token string) error
	// RotateRefreshToken replaces current with next, failing with repositories.ErrNotFound
	// when the stored value is no longer current.
	RotateRefreshToken(ctx context.Context, accountID, current, next string) error
	ClearRefreshToken(ctx context.Context, accountID string) error
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens  models.SessionTokens  `json:"tokens"`
	Account models.AccountSummary `json:"user"`
}

// Manager issues, verifies and rotates session credentials.
type Manager struct {
	accounts AccountStore
	hasher   Hasher
	tokens   *TokenCodec
}

// NewManager constructs a Manager over the given account store.
func NewManager(accounts AccountStore, hasher Hasher, tokens *TokenCodec) *Manager {
	if accounts == nil {
		panic("auth: account store must not be nil")
	}
	if tokens == nil {
		panic("auth: token codec must not be nil")
	}
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultHashCost)
	}
	return &Manager{accounts: accounts, hasher: hasher, tokens: tokens}
}

// Tokens exposes the codec so the request authenticator verifies with the same keys.
func (m *Manager) Tokens() *TokenCodec {
	return m.tokens
}

// Login verifies secret for the account named by identifier and starts a new session,
// superseding any session the account already had.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (LoginResult, error) {
	ctx, span := logging.StartSpan(ctx, "auth.login")
	defer span.End()
	logger := logging.FromContext(ctx)

	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || secret == "" {
		return LoginResult{}, apperr.InvalidArgument("username or email and password are required")
	}

	account, err := m.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login account not found", "identifier", identifier)
			return LoginResult{}, apperr.NotFound("user not found")
		}
		return LoginResult{}, apperr.Internal("failed to load account", err)
	}

	if err := m.hasher.Compare(account.PasswordHash, secret); err != nil {
		if errors.Is(err, ErrSecretMismatch) {
			logger.Warn("login password mismatch", "accountId", account.ID)
			return LoginResult{}, apperr.Unauthorized("invalid user credentials")
		}
		return LoginResult{}, apperr.Internal("failed to verify credentials", err)
	}

	tokens, err := m.Issue(ctx, account)
	if err != nil {
		return LoginResult{}, err
	}

	logger.Info("account logged in", "accountId", account.ID)
	return LoginResult{Tokens: tokens, Account: account.Summary()}, nil
}

// Issue mints a fresh grant pair for account and stores the refresh grant as the current one.
func (m *Manager) Issue(ctx context.Context, account models.Account) (models.SessionTokens, error) {
	tokens, err := m.mint(account)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.accounts.SetRefreshToken(ctx, account.ID, tokens.RefreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, apperr.NotFound("user not found")
		}
		return models.SessionTokens{}, apperr.Internal("failed to store session", err)
	}

	return tokens, nil
}

// Refresh exchanges the current refresh grant for a new pair. Every successful call rotates the
// stored grant, so a presented grant is accepted at most once.
func (m *Manager) Refresh(ctx context.Context, presented string) (models.SessionTokens, error) {
	ctx, span := logging.StartSpan(ctx, "auth.refresh")
	defer span.End()
	logger := logging.FromContext(ctx)

	claims, err := m.tokens.VerifyRefresh(presented)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return models.SessionTokens{}, apperr.Wrap(apperr.KindUnauthorized, "refresh token expired", err)
		}
		return models.SessionTokens{}, apperr.Wrap(apperr.KindUnauthorized, "invalid refresh token", err)
	}

	account, err := m.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, apperr.Unauthorized("invalid refresh token")
		}
		return models.SessionTokens{}, apperr.Internal("failed to load account", err)
	}

	if !sameToken(account.RefreshToken, presented) {
		logger.Warn("refresh with superseded token", "accountId", account.ID)
		return models.SessionTokens{}, apperr.Unauthorized("refresh token is expired or used")
	}

	tokens, err := m.mint(account)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.accounts.RotateRefreshToken(ctx, account.ID, presented, tokens.RefreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("refresh lost rotation race", "accountId", account.ID)
			return models.SessionTokens{}, apperr.Unauthorized("refresh token is expired or used")
		}
		return models.SessionTokens{}, apperr.Internal("failed to rotate session", err)
	}

	return tokens, nil
}

// Logout clears the stored refresh grant so no previously issued grant can be refreshed.
func (m *Manager) Logout(ctx context.Context, accountID string) error {
	if accountID == "" {
		return apperr.Unauthorized("unauthorized request")
	}

	if err := m.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("failed to clear session", err)
	}

	logging.FromContext(ctx).Info("account logged out", "accountId", accountID)
	return nil
}

func (m *Manager) mint(account models.Account) (models.SessionTokens, error) {
	access, accessExp, err := m.tokens.MintAccess(account.Identity())
	if err != nil {
		return models.SessionTokens{}, apperr.Internal("failed to generate tokens", err)
	}
	refresh, refreshExp, err := m.tokens.MintRefresh(account.ID)
	if err != nil {
		return models.SessionTokens{}, apperr.Internal("failed to generate tokens", err)
	}
	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func sameToken(stored *string, presented string) bool {
	if stored == nil || *stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}
