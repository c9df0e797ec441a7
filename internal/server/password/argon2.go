// Package password provides one-way salted password hashing. Hashes are
// stored in PHC string format so the parameters travel with the hash and
// can be tuned without invalidating existing credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/avekshin/authkeeper/internal/common"
)

// Argon2id parameters. Tuned so a single hash lands in the tens of
// milliseconds on commodity hardware.
const (
	defaultTime    = 1
	defaultMemory  = 64 * 1024 // KiB
	defaultThreads = 4
	defaultSaltLen = 16
	defaultKeyLen  = 32
)

var errMalformedHash = errors.New("malformed password hash")

// Hasher hashes and verifies passwords with argon2id.
type Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

// NewHasher returns a Hasher with the package defaults.
func NewHasher() *Hasher {
	return &Hasher{
		time:    defaultTime,
		memory:  defaultMemory,
		threads: defaultThreads,
		saltLen: defaultSaltLen,
		keyLen:  defaultKeyLen,
	}
}

// Hash derives an argon2id hash of plaintext with a fresh random salt and
// returns it in PHC format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt-b64>$<hash-b64>
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt generation: %w", err)
	}

	buf := []byte(plaintext)
	defer common.WipeByteArray(buf)

	key := argon2.IDKey(buf, salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify reports whether plaintext matches the stored PHC hash. The
// comparison is constant-time. Verification fails closed: a malformed hash
// yields (false, error), never a match.
func (h *Hasher) Verify(plaintext, phcHash string) (bool, error) {
	parts := strings.Split(phcHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errMalformedHash
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, errMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errMalformedHash
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errMalformedHash
	}
	if len(expected) == 0 {
		return false, errMalformedHash
	}

	buf := []byte(plaintext)
	defer common.WipeByteArray(buf)

	computed := argon2.IDKey(buf, salt, iterations, memory, threads, uint32(len(expected)))
	defer common.WipeByteArray(computed)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
