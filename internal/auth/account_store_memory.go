package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// NewInMemoryAccountStore returns an AccountStore backed by an in-memory map.
func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{accounts: make(map[string]models.Account)}
}

// InMemoryAccountStore implements AccountStore for tests and local development.
// The mutex gives RotateRefreshToken the same compare-and-swap semantics as the SQL store.
type InMemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// Create stores a new account, rejecting duplicate usernames or emails.
func (s *InMemoryAccountStore) Create(_ context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.ID == account.ID || existing.Username == account.Username || existing.Email == account.Email {
			return repositories.ErrConflict
		}
	}
	s.accounts[account.ID] = account
	return nil
}

// FindByIdentifier looks an account up by username or email.
func (s *InMemoryAccountStore) FindByIdentifier(_ context.Context, usernameOrEmail string) (models.Account, error) {
	identifier := strings.ToLower(strings.TrimSpace(usernameOrEmail))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.Username == identifier || account.Email == identifier {
			return account, nil
		}
	}
	return models.Account{}, repositories.ErrNotFound
}

// FindByID looks an account up by identifier.
func (s *InMemoryAccountStore) FindByID(_ context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	account, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return models.Account{}, repositories.ErrNotFound
	}
	return account, nil
}

// SetRefreshToken overwrites the stored refresh grant.
func (s *InMemoryAccountStore) SetRefreshToken(_ context.Context, accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return repositories.ErrNotFound
	}
	account.RefreshToken = &token
	s.accounts[accountID] = account
	return nil
}

// RotateRefreshToken swaps current for next only if current is still stored.
func (s *InMemoryAccountStore) RotateRefreshToken(_ context.Context, accountID, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok || account.RefreshToken == nil || *account.RefreshToken != current {
		return repositories.ErrNotFound
	}
	account.RefreshToken = &next
	s.accounts[accountID] = account
	return nil
}

// ClearRefreshToken removes the stored refresh grant.
func (s *InMemoryAccountStore) ClearRefreshToken(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return repositories.ErrNotFound
	}
	account.RefreshToken = nil
	s.accounts[accountID] = account
	return nil
}

// RefreshTokenOf reports the stored refresh grant. Useful for tests.
func (s *InMemoryAccountStore) RefreshTokenOf(accountID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok || account.RefreshToken == nil {
		return "", false
	}
	return *account.RefreshToken, true
}
