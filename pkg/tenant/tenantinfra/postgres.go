package tenantinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tillgate/tillgate/pkg/directory/directoryinfra"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/identity/identityinfra"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/tenant"
)

const orgColumns = `
	id, name, slug, owner_id, branch_count, cashier_count, next_branch_seq,
	created_at, updated_at`

// PostgresOrganizationRepository implements tenant.OrganizationRepository.
type PostgresOrganizationRepository struct {
	ext sqlx.ExtContext
}

func NewPostgresOrganizationRepository(db *sqlx.DB) *PostgresOrganizationRepository {
	return &PostgresOrganizationRepository{ext: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *PostgresOrganizationRepository) WithTx(tx *sqlx.Tx) tenant.OrganizationRepository {
	return &PostgresOrganizationRepository{ext: tx}
}

func (r *PostgresOrganizationRepository) Insert(ctx context.Context, org tenant.Organization) error {
	query := `
		INSERT INTO organizations (` + orgColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.ext.ExecContext(ctx, query,
		org.ID, org.Name, org.Slug, org.OwnerID, org.BranchCount, org.CashierCount,
		org.NextBranchSeq, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if kernel.IsUniqueViolation(err, "") {
			return tenant.ErrDuplicateSlug().WithDetail("slug", org.Slug)
		}
		return errx.Wrap(err, "failed to insert organization", errx.TypeInternal).
			WithDetail("org_id", org.ID.String())
	}

	return nil
}

func (r *PostgresOrganizationRepository) Get(ctx context.Context, id kernel.OrgID) (*tenant.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`

	var org tenant.Organization
	if err := sqlx.GetContext(ctx, r.ext, &org, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrOrgNotFound().WithDetail("org_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to get organization", errx.TypeInternal)
	}

	return &org, nil
}

func (r *PostgresOrganizationRepository) FindTakenSlugs(ctx context.Context, prefix string) (map[string]bool, error) {
	query := `SELECT slug FROM organizations WHERE slug LIKE $1 || '%'`

	var slugs []string
	if err := sqlx.SelectContext(ctx, r.ext, &slugs, query, prefix); err != nil {
		return nil, errx.Wrap(err, "failed to list organization slugs", errx.TypeInternal)
	}

	return toSet(slugs), nil
}

func (r *PostgresOrganizationRepository) AllocateBranchSeq(ctx context.Context, id kernel.OrgID) (int, error) {
	query := `
		UPDATE organizations
		SET next_branch_seq = next_branch_seq + 1, updated_at = $2
		WHERE id = $1
		RETURNING next_branch_seq - 1`

	var seq int
	if err := sqlx.GetContext(ctx, r.ext, &seq, query, id, time.Now()); err != nil {
		if err == sql.ErrNoRows {
			return 0, tenant.ErrOrgNotFound().WithDetail("org_id", id.String())
		}
		return 0, errx.Wrap(err, "failed to allocate branch sequence", errx.TypeInternal).
			WithDetail("org_id", id.String())
	}

	return seq, nil
}

func (r *PostgresOrganizationRepository) AdjustCounts(ctx context.Context, id kernel.OrgID, branchDelta, cashierDelta int) error {
	query := `
		UPDATE organizations
		SET branch_count = branch_count + $2, cashier_count = cashier_count + $3, updated_at = $4
		WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id, branchDelta, cashierDelta, time.Now()); err != nil {
		return errx.Wrap(err, "failed to adjust organization counters", errx.TypeInternal).
			WithDetail("org_id", id.String())
	}

	return nil
}

// ============================================================================
// Branch repository
// ============================================================================

const branchColumns = `
	id, org_id, name, slug, username, branch_no, manager_id, next_cashier_seq,
	created_at, updated_at`

// PostgresBranchRepository implements tenant.BranchRepository.
type PostgresBranchRepository struct {
	ext sqlx.ExtContext
}

func NewPostgresBranchRepository(db *sqlx.DB) *PostgresBranchRepository {
	return &PostgresBranchRepository{ext: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *PostgresBranchRepository) WithTx(tx *sqlx.Tx) tenant.BranchRepository {
	return &PostgresBranchRepository{ext: tx}
}

func (r *PostgresBranchRepository) Insert(ctx context.Context, b tenant.Branch) error {
	query := `
		INSERT INTO branches (` + branchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.ext.ExecContext(ctx, query,
		b.ID, b.OrgID, b.Name, b.Slug, b.Username, b.BranchNo, b.ManagerID,
		b.NextCashierSeq, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if kernel.IsUniqueViolation(err, "") {
			return tenant.ErrDuplicateSlug().WithDetail("username", b.Username)
		}
		return errx.Wrap(err, "failed to insert branch", errx.TypeInternal).
			WithDetail("branch_id", b.ID.String())
	}

	return nil
}

func (r *PostgresBranchRepository) Get(ctx context.Context, id kernel.BranchID) (*tenant.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE id = $1`

	var b tenant.Branch
	if err := sqlx.GetContext(ctx, r.ext, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrBranchNotFound().WithDetail("branch_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to get branch", errx.TypeInternal)
	}

	return &b, nil
}

func (r *PostgresBranchRepository) ListByOrg(ctx context.Context, orgID kernel.OrgID) ([]tenant.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE org_id = $1 ORDER BY branch_no`

	var branches []tenant.Branch
	if err := sqlx.SelectContext(ctx, r.ext, &branches, query, orgID); err != nil {
		return nil, errx.Wrap(err, "failed to list branches", errx.TypeInternal).
			WithDetail("org_id", orgID.String())
	}

	return branches, nil
}

func (r *PostgresBranchRepository) FindTakenSlugs(ctx context.Context, orgID kernel.OrgID, prefix string) (map[string]bool, error) {
	query := `SELECT slug FROM branches WHERE org_id = $1 AND slug LIKE $2 || '%'`

	var slugs []string
	if err := sqlx.SelectContext(ctx, r.ext, &slugs, query, orgID, prefix); err != nil {
		return nil, errx.Wrap(err, "failed to list branch slugs", errx.TypeInternal)
	}

	return toSet(slugs), nil
}

func (r *PostgresBranchRepository) FindTakenUsernames(ctx context.Context, prefix string) (map[string]bool, error) {
	query := `SELECT username FROM branches WHERE username LIKE $1 || '%'`

	var usernames []string
	if err := sqlx.SelectContext(ctx, r.ext, &usernames, query, prefix); err != nil {
		return nil, errx.Wrap(err, "failed to list branch usernames", errx.TypeInternal)
	}

	return toSet(usernames), nil
}

func (r *PostgresBranchRepository) AllocateCashierSeq(ctx context.Context, id kernel.BranchID) (int, error) {
	query := `
		UPDATE branches
		SET next_cashier_seq = next_cashier_seq + 1, updated_at = $2
		WHERE id = $1
		RETURNING next_cashier_seq - 1`

	var seq int
	if err := sqlx.GetContext(ctx, r.ext, &seq, query, id, time.Now()); err != nil {
		if err == sql.ErrNoRows {
			return 0, tenant.ErrBranchNotFound().WithDetail("branch_id", id.String())
		}
		return 0, errx.Wrap(err, "failed to allocate cashier sequence", errx.TypeInternal).
			WithDetail("branch_id", id.String())
	}

	return seq, nil
}

func (r *PostgresBranchRepository) SetManager(ctx context.Context, id kernel.BranchID, managerID *kernel.AccountID) error {
	query := `UPDATE branches SET manager_id = $2, updated_at = $3 WHERE id = $1`

	result, err := r.ext.ExecContext(ctx, query, id, managerID, time.Now())
	if err != nil {
		return errx.Wrap(err, "failed to set branch manager", errx.TypeInternal).
			WithDetail("branch_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return tenant.ErrBranchNotFound().WithDetail("branch_id", id.String())
	}

	return nil
}

func (r *PostgresBranchRepository) ClearManagerRef(ctx context.Context, accountID kernel.AccountID) error {
	query := `UPDATE branches SET manager_id = NULL, updated_at = $2 WHERE manager_id = $1`

	if _, err := r.ext.ExecContext(ctx, query, accountID, time.Now()); err != nil {
		return errx.Wrap(err, "failed to clear branch manager reference", errx.TypeInternal).
			WithDetail("account_id", accountID.String())
	}

	return nil
}

func (r *PostgresBranchRepository) Delete(ctx context.Context, id kernel.BranchID) error {
	query := `DELETE FROM branches WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, id); err != nil {
		return errx.Wrap(err, "failed to delete branch", errx.TypeInternal).
			WithDetail("branch_id", id.String())
	}

	return nil
}

// ============================================================================
// Transaction runner
// ============================================================================

// PostgresTxRunner binds the hierarchy, profile and directory repositories to
// one serializable transaction.
type PostgresTxRunner struct {
	db        *sqlx.DB
	orgs      *PostgresOrganizationRepository
	branches  *PostgresBranchRepository
	profiles  *identityinfra.PostgresProfileRepository
	directory *directoryinfra.PostgresDirectory
}

func NewPostgresTxRunner(
	db *sqlx.DB,
	orgs *PostgresOrganizationRepository,
	branches *PostgresBranchRepository,
	profiles *identityinfra.PostgresProfileRepository,
	dir *directoryinfra.PostgresDirectory,
) *PostgresTxRunner {
	return &PostgresTxRunner{db: db, orgs: orgs, branches: branches, profiles: profiles, directory: dir}
}

func (r *PostgresTxRunner) WithinTx(ctx context.Context, fn func(tx tenant.TxPorts) error) error {
	return kernel.WithinTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(tenant.TxPorts{
			Orgs:      r.orgs.WithTx(tx),
			Branches:  r.branches.WithTx(tx),
			Profiles:  r.profiles.WithTx(tx),
			Directory: r.directory.WithTx(tx),
		})
	})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
