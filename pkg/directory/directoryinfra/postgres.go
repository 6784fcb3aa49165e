package directoryinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// PostgresDirectory implements directory.Directory over the local
// directory_accounts table.
type PostgresDirectory struct {
	ext sqlx.ExtContext
}

func NewPostgresDirectory(db *sqlx.DB) *PostgresDirectory {
	return &PostgresDirectory{ext: db}
}

// WithTx returns a copy bound to the given transaction.
func (d *PostgresDirectory) WithTx(tx *sqlx.Tx) directory.Directory {
	return &PostgresDirectory{ext: tx}
}

func (d *PostgresDirectory) Create(ctx context.Context, acct directory.Account) error {
	query := `
		INSERT INTO directory_accounts (uid, login_email, virtual, disabled, claims, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	now := time.Now()
	_, err := d.ext.ExecContext(ctx, query,
		acct.UID, acct.LoginEmail, acct.Virtual, acct.Disabled, acct.Claims, now, now)
	if err != nil {
		if kernel.IsUniqueViolation(err, "") {
			return directory.ErrAccountExists().WithDetail("uid", acct.UID)
		}
		return errx.Wrap(err, "failed to create directory account", errx.TypeInternal).
			WithDetail("uid", acct.UID)
	}

	return nil
}

func (d *PostgresDirectory) Get(ctx context.Context, uid string) (*directory.Account, error) {
	query := `
		SELECT uid, login_email, virtual, disabled, claims, created_at, updated_at
		FROM directory_accounts
		WHERE uid = $1`

	var acct directory.Account
	err := sqlx.GetContext(ctx, d.ext, &acct, query, uid)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, directory.ErrAccountNotFound().WithDetail("uid", uid)
		}
		return nil, errx.Wrap(err, "failed to get directory account", errx.TypeInternal)
	}

	return &acct, nil
}

func (d *PostgresDirectory) FindByLogin(ctx context.Context, loginEmail string) (*directory.Account, error) {
	query := `
		SELECT uid, login_email, virtual, disabled, claims, created_at, updated_at
		FROM directory_accounts
		WHERE login_email = $1`

	var acct directory.Account
	err := sqlx.GetContext(ctx, d.ext, &acct, query, loginEmail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, directory.ErrAccountNotFound().WithDetail("login_email", loginEmail)
		}
		return nil, errx.Wrap(err, "failed to find directory account", errx.TypeInternal)
	}

	return &acct, nil
}

func (d *PostgresDirectory) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	query := `UPDATE directory_accounts SET disabled = $2, updated_at = $3 WHERE uid = $1`

	if _, err := d.ext.ExecContext(ctx, query, uid, disabled, time.Now()); err != nil {
		return errx.Wrap(err, "failed to update directory account state", errx.TypeInternal).
			WithDetail("uid", uid)
	}

	return nil
}

func (d *PostgresDirectory) ApplyClaims(ctx context.Context, uid string, claims directory.Claims) error {
	query := `UPDATE directory_accounts SET claims = $2, updated_at = $3 WHERE uid = $1`

	result, err := d.ext.ExecContext(ctx, query, uid, claims, time.Now())
	if err != nil {
		return errx.Wrap(err, "failed to apply directory claims", errx.TypeInternal).
			WithDetail("uid", uid)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return directory.ErrAccountNotFound().WithDetail("uid", uid)
	}

	return nil
}

func (d *PostgresDirectory) Delete(ctx context.Context, uid string) error {
	query := `DELETE FROM directory_accounts WHERE uid = $1`

	if _, err := d.ext.ExecContext(ctx, query, uid); err != nil {
		return errx.Wrap(err, "failed to delete directory account", errx.TypeInternal).
			WithDetail("uid", uid)
	}

	return nil
}
