package pincred

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/tillgate/tillgate/pkg/errx"
)

// Argon2id parameters, tuned for the deployment hardware. Changing them only
// affects new hashes; existing hashes carry their own parameters in the
// encoded string.
const (
	argonMemory      = 64 * 1024
	argonPasses      = 3
	argonParallelism = 1
	argonSaltLen     = 16
	argonKeyLen      = 32

	modernHashPrefix = "$argon2id$"

	// HashAlgModern and HashAlgLegacy tag the stored credential so migrations
	// are observable.
	HashAlgModern = "argon2id"
	HashAlgLegacy = "sha256"
)

// Hasher hashes and verifies PIN/password secrets. All methods are pure
// functions over the secret; persistence of upgraded hashes is the caller's
// concern.
type Hasher struct {
	pepper []byte
}

// NewHasher creates a Hasher with the server-side pepper. The pepper is
// appended to every secret before hashing, so a leaked database alone is not
// enough to mount an offline attack.
func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper)}
}

// Hash derives an Argon2id hash of the peppered secret and returns it in the
// standard encoded form.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errx.Wrap(err, "failed to generate salt", errx.TypeInternal)
	}

	key := argon2.IDKey(h.peppered(secret), salt, argonPasses, argonMemory, argonParallelism, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonPasses, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches the encoded Argon2id hash. It never
// returns an error: malformed input is treated as a failed match.
func (h *Hasher) Verify(secret, encodedHash string) bool {
	memory, passes, parallelism, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey(h.peppered(secret), salt, passes, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

// VerifyLegacy reports whether secret matches a legacy unsalted, unpeppered
// SHA-256 hex digest. Callers that get a match must re-hash under the modern
// scheme and persist the upgrade.
func (h *Hasher) VerifyLegacy(secret, legacyHash string) bool {
	if !IsLegacyHash(legacyHash) {
		return false
	}
	sum := sha256.Sum256([]byte(secret))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(legacyHash))) == 1
}

// IsModernHash reports whether value is in the current algorithm's encoded
// form.
func IsModernHash(value string) bool {
	return strings.HasPrefix(value, modernHashPrefix)
}

// IsLegacyHash reports whether value looks like the legacy fixed-length hex
// digest.
func IsLegacyHash(value string) bool {
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

func (h *Hasher) peppered(secret string) []byte {
	b := make([]byte, 0, len(secret)+len(h.pepper))
	b = append(b, secret...)
	b = append(b, h.pepper...)
	return b
}

// decodeHash parses the standard $argon2id$v=19$m=...,t=...,p=...$salt$key
// encoding.
func decodeHash(encoded string) (memory uint32, passes uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed hash")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p uint8
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &passes, &p); err != nil {
		return 0, 0, 0, nil, nil, err
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}

	return memory, passes, p, salt, key, nil
}
