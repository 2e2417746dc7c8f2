package repositories

import (
	"context"
	"fmt"
)

// Sessions live on the users row: refresh_token holds the one grant that may currently be
// exchanged, and NULL means the account is logged out.

// SetRefreshToken overwrites the stored refresh grant, superseding any previous session.
func (r *PostgresAccountRepository) SetRefreshToken(ctx context.Context, accountID, token string) error {
	return r.execSession(ctx, "store refresh token", `
        UPDATE users
        SET refresh_token = $2, updated_at = NOW()
        WHERE id = $1
    `, accountID, token)
}

// RotateRefreshToken replaces current with next in a single conditional write. It returns
// ErrNotFound when current is no longer the stored grant, so concurrent refreshes of the
// same grant cannot both succeed.
func (r *PostgresAccountRepository) RotateRefreshToken(ctx context.Context, accountID, current, next string) error {
	return r.execSession(ctx, "rotate refresh token", `
        UPDATE users
        SET refresh_token = $3, updated_at = NOW()
        WHERE id = $1 AND refresh_token = $2
    `, accountID, current, next)
}

// ClearRefreshToken revokes the stored refresh grant.
func (r *PostgresAccountRepository) ClearRefreshToken(ctx context.Context, accountID string) error {
	return r.execSession(ctx, "clear refresh token", `
        UPDATE users
        SET refresh_token = NULL, updated_at = NOW()
        WHERE id = $1
    `, accountID)
}

func (r *PostgresAccountRepository) execSession(ctx context.Context, op, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
