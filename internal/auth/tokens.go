package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/models"
)

var (
	// ErrTokenExpired indicates a structurally valid token whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, malformed tokens and wrong token types.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenType distinguishes access grants from refresh grants.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by both grant types.
type Claims struct {
	jwt.RegisteredClaims
	Type     TokenType `json:"typ"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// TokenConfig configures signing keys and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenCodec signs and verifies access and refresh grants. It holds no mutable state.
type TokenCodec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewTokenCodec validates cfg and returns a codec using HS256.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 10 * 24 * time.Hour
	}
	return &TokenCodec{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source. Intended for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	clone := *c
	clone.now = now
	return &clone
}

// MintAccess signs a short-lived access grant for identity.
func (c *TokenCodec) MintAccess(identity models.Identity) (string, time.Time, error) {
	if identity.ID == "" {
		return "", time.Time{}, errors.New("auth: subject must be provided")
	}
	claims := c.claims(identity.ID, TokenAccess, c.accessTTL)
	claims.Username = identity.Username
	claims.Email = identity.Email
	return c.sign(claims, c.accessKey)
}

// MintRefresh signs a refresh grant for accountID.
func (c *TokenCodec) MintRefresh(accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, errors.New("auth: subject must be provided")
	}
	return c.sign(c.claims(accountID, TokenRefresh, c.refreshTTL), c.refreshKey)
}

// VerifyAccess checks signature, expiry and type of an access grant.
func (c *TokenCodec) VerifyAccess(token string) (Claims, error) {
	return c.verify(token, TokenAccess, c.accessKey)
}

// VerifyRefresh checks signature, expiry and type of a refresh grant.
func (c *TokenCodec) VerifyRefresh(token string) (Claims, error) {
	return c.verify(token, TokenRefresh, c.refreshKey)
}

func (c *TokenCodec) claims(subject string, typ TokenType, ttl time.Duration) *Claims {
	now := c.now().UTC()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}
}

func (c *TokenCodec) sign(claims *Claims, key []byte) (string, time.Time, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (c *TokenCodec) verify(token string, typ TokenType, key []byte) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Type != typ || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}
