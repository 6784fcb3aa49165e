package session

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// TTL is the absolute session lifetime. There is no sliding renewal.
const TTL = 8 * time.Hour

// Session is one signed-in browser or terminal. Creating a new session for an
// account supersedes its earlier ones, though cleanup of those is best effort
// rather than atomic with creation.
type Session struct {
	ID        string           `json:"id"`
	AccountID kernel.AccountID `json:"account_id"`
	Role      kernel.Role      `json:"role"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// IsExpired reports whether the session's absolute lifetime has passed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// NewID returns an opaque, unguessable session identifier.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errx.Wrap(err, "failed to generate session id", errx.TypeInternal)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SESSION")

var CodeInvalid = ErrRegistry.Register("INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "Session is missing or expired")

func ErrInvalid() *errx.Error {
	return ErrRegistry.New(CodeInvalid)
}
