package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// Purpose distinguishes onboarding invites from password/PIN resets. The two
// carry different expiries.
type Purpose string

const (
	PurposeOnboarding Purpose = "ONBOARDING"
	PurposeReset      Purpose = "RESET"
)

// TTL returns the fixed validity window for the purpose.
func (p Purpose) TTL() time.Duration {
	if p == PurposeReset {
		return 1 * time.Hour
	}
	return 24 * time.Hour
}

// Token is a one-time credential-setup token. Only the digest of the raw
// token is ever persisted.
type Token struct {
	ID          string      `db:"id" json:"id"`
	Email       string      `db:"email" json:"email"`
	NameHint    string      `db:"name_hint" json:"name_hint"`
	Role        kernel.Role `db:"role" json:"role"`
	Purpose     Purpose     `db:"purpose" json:"purpose"`
	TokenDigest string      `db:"token_digest" json:"-"`
	ExpiresAt   time.Time   `db:"expires_at" json:"expires_at"`
	Used        bool        `db:"used" json:"used"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the token's validity window has passed.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// GenerateToken returns a cryptographically random raw token and its digest.
func GenerateToken() (raw string, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errx.Wrap(err, "failed to generate invite token", errx.TypeInternal)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, Digest(raw), nil
}

// Digest returns the persisted form of a raw token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("INVITE")

var (
	CodeNotFound    = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Invite token not found")
	CodeAlreadyUsed = ErrRegistry.Register("ALREADY_USED", errx.TypeBusiness, http.StatusGone, "Invite token already used")
	CodeExpired     = ErrRegistry.Register("EXPIRED", errx.TypeBusiness, http.StatusBadRequest, "Invite token expired")
)

func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}

func ErrAlreadyUsed() *errx.Error {
	return ErrRegistry.New(CodeAlreadyUsed)
}

func ErrExpired() *errx.Error {
	return ErrRegistry.New(CodeExpired)
}
