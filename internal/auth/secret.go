// internal/auth/secret.go
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("malformed gm secret digest")
	ErrIncompatibleVersion = errors.New("gm secret digest uses another argon2 version")
)

// cost is the Argon2id work factor. Tokens carry their own entropy, so it
// sits well below what password storage would need.
type cost struct {
	memory  uint32
	time    uint32
	threads uint8
}

var gmCost = cost{memory: 19 * 1024, time: 2, threads: 1}

const (
	tokenBytes = 24
	saltBytes  = 16
	keyBytes   = 32
)

var b64 = base64.RawStdEncoding.Strict()

// digest is the stored form of a GM token, serialized in PHC notation.
type digest struct {
	cost
	salt []byte
	key  []byte
}

func derive(token string, c cost, salt []byte, n uint32) []byte {
	return argon2.IDKey([]byte(token), salt, c.time, c.memory, c.threads, n)
}

func (d digest) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, d.memory, d.time, d.threads,
		b64.EncodeToString(d.salt), b64.EncodeToString(d.key))
}

func parseDigest(s string) (digest, error) {
	var d digest
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return d, ErrInvalidHash
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil {
		return d, ErrInvalidHash
	}
	if v != argon2.Version {
		return d, ErrIncompatibleVersion
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.threads); err != nil {
		return d, ErrInvalidHash
	}
	var err error
	if d.salt, err = b64.DecodeString(parts[4]); err != nil {
		return d, ErrInvalidHash
	}
	if d.key, err = b64.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return d, ErrInvalidHash
	}
	return d, nil
}

func hashToken(token string) (digest, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return digest{}, fmt.Errorf("failed to read salt: %w", err)
	}
	return digest{cost: gmCost, salt: salt, key: derive(token, gmCost, salt, keyBytes)}, nil
}

// NewGMSecret mints a GM capability token. Only encoded is persisted; the
// token is returned to the GM once.
func NewGMSecret() (token, encoded string, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate gm secret: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	d, err := hashToken(token)
	if err != nil {
		return "", "", err
	}
	return token, d.String(), nil
}

// VerifySecret compares secret against a stored digest in constant time.
// A blank secret never matches.
func VerifySecret(secret, encoded string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	d, err := parseDigest(encoded)
	if err != nil {
		return false, err
	}
	got := derive(secret, d.cost, d.salt, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(d.key, got) == 1, nil
}
