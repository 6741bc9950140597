// Package auth covers credential handling for arena accounts: Argon2id
// password hashing and ed25519-signed JWTs for request authentication.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/knightwatch/arena/internal/arena"
)

// Argon2id cost parameters. Changing them only affects new hashes; the
// parameters of existing hashes are read back from the encoded string.
const (
	argonMemoryKiB   = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLen     = 16
	argonKeyLen      = 32
)

// HashPassword derives an Argon2id hash and encodes it in the standard
// $argon2id$ format, parameters and salt included.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonParallelism, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// CheckPassword reports whether password matches the encoded hash,
// comparing in constant time.
func CheckPassword(password, encoded string) (bool, error) {
	memory, iterations, parallelism, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	probe := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, probe) == 1, nil
}

func decodeHash(encoded string) (memory, iterations uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		err = arena.E(arena.Fatal, "malformed password hash")
		return
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return
	}
	if version != argon2.Version {
		err = arena.E(arena.Fatal, "unsupported argon2 version %d", version)
		return
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return
	}
	if salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4]); err != nil {
		return
	}
	key, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	return
}
