package identityinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tillgate/tillgate/pkg/directory/directoryinfra"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/invite/inviteinfra"
	"github.com/tillgate/tillgate/pkg/kernel"
)

const profileColumns = `
	id, role, org_id, branch_id, display_name, email, username, status,
	pin_hash, hash_alg, hash_upgraded_at, claims_version, created_at, updated_at`

// PostgresProfileRepository implements identity.ProfileRepository.
type PostgresProfileRepository struct {
	ext sqlx.ExtContext
}

func NewPostgresProfileRepository(db *sqlx.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{ext: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *PostgresProfileRepository) WithTx(tx *sqlx.Tx) identity.ProfileRepository {
	return &PostgresProfileRepository{ext: tx}
}

func (r *PostgresProfileRepository) Insert(ctx context.Context, p identity.Profile) error {
	query := `
		INSERT INTO account_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.ext.ExecContext(ctx, query,
		p.ID, p.Role, p.OrgID, p.BranchID, p.DisplayName, p.Email, p.Username, p.Status,
		p.PinHash, p.HashAlg, p.HashUpgradedAt, p.ClaimsVersion, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if kernel.IsUniqueViolation(err, "") {
			return identity.ErrAccountExists().WithDetail("username", p.Username)
		}
		return errx.Wrap(err, "failed to insert account profile", errx.TypeInternal).
			WithDetail("account_id", p.ID.String())
	}

	return nil
}

func (r *PostgresProfileRepository) Get(ctx context.Context, id kernel.AccountID) (*identity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM account_profiles WHERE id = $1`

	var p identity.Profile
	if err := sqlx.GetContext(ctx, r.ext, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrAccountNotFound().WithDetail("account_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to get account profile", errx.TypeInternal)
	}

	return &p, nil
}

func (r *PostgresProfileRepository) FindByEmail(ctx context.Context, email string, role kernel.Role) (*identity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM account_profiles WHERE email = $1 AND role = $2`

	var p identity.Profile
	if err := sqlx.GetContext(ctx, r.ext, &p, query, email, role); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrAccountNotFound().WithDetail("email", email)
		}
		return nil, errx.Wrap(err, "failed to find account profile by email", errx.TypeInternal)
	}

	return &p, nil
}

func (r *PostgresProfileRepository) FindByUsername(ctx context.Context, username string) (*identity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM account_profiles WHERE username = $1`

	var p identity.Profile
	if err := sqlx.GetContext(ctx, r.ext, &p, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrAccountNotFound().WithDetail("username", username)
		}
		return nil, errx.Wrap(err, "failed to find account profile by username", errx.TypeInternal)
	}

	return &p, nil
}

func (r *PostgresProfileRepository) ExistsByEmail(ctx context.Context, email string, role kernel.Role) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM account_profiles WHERE email = $1 AND role = $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, r.ext, &exists, query, email, role); err != nil {
		return false, errx.Wrap(err, "failed to check account existence", errx.TypeInternal).
			WithDetail("email", email)
	}

	return exists, nil
}

func (r *PostgresProfileRepository) ListByBranch(ctx context.Context, branchID kernel.BranchID, role kernel.Role) ([]identity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM account_profiles WHERE branch_id = $1 AND role = $2 ORDER BY created_at`

	var profiles []identity.Profile
	if err := sqlx.SelectContext(ctx, r.ext, &profiles, query, branchID, role); err != nil {
		return nil, errx.Wrap(err, "failed to list account profiles by branch", errx.TypeInternal).
			WithDetail("branch_id", branchID.String())
	}

	return profiles, nil
}

func (r *PostgresProfileRepository) SetCredential(ctx context.Context, id kernel.AccountID, hash, alg string, status identity.Status) error {
	query := `
		UPDATE account_profiles
		SET pin_hash = $2, hash_alg = $3, status = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.ext.ExecContext(ctx, query, id, hash, alg, status, time.Now())
	if err != nil {
		return errx.Wrap(err, "failed to set credential", errx.TypeInternal).
			WithDetail("account_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return identity.ErrAccountNotFound().WithDetail("account_id", id.String())
	}

	return nil
}

func (r *PostgresProfileRepository) UpgradeCredential(ctx context.Context, id kernel.AccountID, hash, alg string, upgradedAt time.Time) error {
	query := `
		UPDATE account_profiles
		SET pin_hash = $2, hash_alg = $3, hash_upgraded_at = $4, updated_at = $4
		WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id, hash, alg, upgradedAt); err != nil {
		return errx.Wrap(err, "failed to upgrade credential", errx.TypeInternal).
			WithDetail("account_id", id.String())
	}

	return nil
}

func (r *PostgresProfileRepository) SetClaimsVersion(ctx context.Context, id kernel.AccountID, version int) error {
	query := `UPDATE account_profiles SET claims_version = $2, updated_at = $3 WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id, version, time.Now()); err != nil {
		return errx.Wrap(err, "failed to set claims version", errx.TypeInternal).
			WithDetail("account_id", id.String())
	}

	return nil
}

func (r *PostgresProfileRepository) Delete(ctx context.Context, id kernel.AccountID) error {
	query := `DELETE FROM account_profiles WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id); err != nil {
		return errx.Wrap(err, "failed to delete account profile", errx.TypeInternal).
			WithDetail("account_id", id.String())
	}

	return nil
}

// ============================================================================
// Transaction runner
// ============================================================================

// PostgresTxRunner binds the profile, directory and invite repositories to
// one serializable transaction.
type PostgresTxRunner struct {
	db        *sqlx.DB
	profiles  *PostgresProfileRepository
	directory *directoryinfra.PostgresDirectory
	invites   *inviteinfra.PostgresTokenRepository
}

func NewPostgresTxRunner(
	db *sqlx.DB,
	profiles *PostgresProfileRepository,
	dir *directoryinfra.PostgresDirectory,
	invites *inviteinfra.PostgresTokenRepository,
) *PostgresTxRunner {
	return &PostgresTxRunner{db: db, profiles: profiles, directory: dir, invites: invites}
}

func (r *PostgresTxRunner) WithinTx(ctx context.Context, fn func(tx identity.TxPorts) error) error {
	return kernel.WithinTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(identity.TxPorts{
			Profiles:  r.profiles.WithTx(tx),
			Directory: r.directory.WithTx(tx),
			Invites:   r.invites.WithTx(tx),
		})
	})
}
