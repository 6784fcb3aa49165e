package directory

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tillgate/tillgate/pkg/errx"
)

// Account is the auth-provider identity paired with an account profile. The
// UID always equals the profile record's id; the provisioner is the only
// writer on either side.
type Account struct {
	UID        string    `db:"uid" json:"uid"`
	LoginEmail string    `db:"login_email" json:"login_email"`
	Virtual    bool      `db:"virtual" json:"virtual"`
	Disabled   bool      `db:"disabled" json:"disabled"`
	Claims     Claims    `db:"claims" json:"claims"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Claims is the permission claim set attached to a directory account,
// persisted as jsonb.
type Claims map[string]any

// Value implements driver.Valuer.
func (c Claims) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *Claims) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = nil
		return nil
	default:
		return fmt.Errorf("unsupported claims type %T", src)
	}
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("DIRECTORY")

var (
	CodeAccountNotFound = ErrRegistry.Register("ACCOUNT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Directory account not found")
	CodeAccountExists   = ErrRegistry.Register("ACCOUNT_EXISTS", errx.TypeConflict, http.StatusConflict, "Directory account already exists")
)

func ErrAccountNotFound() *errx.Error {
	return ErrRegistry.New(CodeAccountNotFound)
}

func ErrAccountExists() *errx.Error {
	return ErrRegistry.New(CodeAccountExists)
}
