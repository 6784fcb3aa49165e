package inviteinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/invite"
)

// PostgresTokenRepository implements invite.TokenRepository over Postgres.
// It runs against whatever sqlx.ExtContext it is bound to, so the same
// implementation serves both plain-connection and in-transaction use.
type PostgresTokenRepository struct {
	ext sqlx.ExtContext
}

// NewPostgresTokenRepository creates a repository bound to the database pool.
func NewPostgresTokenRepository(db *sqlx.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{ext: db}
}

// WithTx returns a copy of the repository bound to the given transaction, so
// token consumption commits together with the caller's credential mutation.
func (r *PostgresTokenRepository) WithTx(tx *sqlx.Tx) invite.TokenRepository {
	return &PostgresTokenRepository{ext: tx}
}

func (r *PostgresTokenRepository) Insert(ctx context.Context, t invite.Token) error {
	query := `
		INSERT INTO invite_tokens (
			id, email, name_hint, role, purpose, token_digest, expires_at, used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.ext.ExecContext(ctx, query,
		t.ID, t.Email, t.NameHint, t.Role, t.Purpose, t.TokenDigest, t.ExpiresAt, t.Used, t.CreatedAt)
	if err != nil {
		return errx.Wrap(err, "failed to insert invite token", errx.TypeInternal).
			WithDetail("token_id", t.ID)
	}

	return nil
}

func (r *PostgresTokenRepository) FindByDigest(ctx context.Context, digest string) (*invite.Token, error) {
	query := `
		SELECT id, email, name_hint, role, purpose, token_digest, expires_at, used, created_at
		FROM invite_tokens
		WHERE token_digest = $1`

	var t invite.Token
	err := sqlx.GetContext(ctx, r.ext, &t, query, digest)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, invite.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find invite token", errx.TypeInternal)
	}

	return &t, nil
}

// MarkUsed flips the used flag in a single statement, so concurrent consumers
// cannot both observe unused.
func (r *PostgresTokenRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE invite_tokens SET used = TRUE WHERE id = $1 AND used = FALSE`

	result, err := r.ext.ExecContext(ctx, query, id)
	if err != nil {
		return false, errx.Wrap(err, "failed to mark invite token used", errx.TypeInternal).
			WithDetail("token_id", id)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	return rowsAffected == 1, nil
}

func (r *PostgresTokenRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM invite_tokens WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id); err != nil {
		return errx.Wrap(err, "failed to delete invite token", errx.TypeInternal).
			WithDetail("token_id", id)
	}

	return nil
}

func (r *PostgresTokenRepository) DeleteStaleByEmail(ctx context.Context, email string, now time.Time) error {
	query := `DELETE FROM invite_tokens WHERE email = $1 AND (used = TRUE OR expires_at < $2)`

	if _, err := r.ext.ExecContext(ctx, query, email, now); err != nil {
		return errx.Wrap(err, "failed to delete stale invite tokens", errx.TypeInternal).
			WithDetail("email", email)
	}

	return nil
}
