package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/arklim/tenant-access/internal/core/port"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the library default Argon2id configuration.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher implements port.PasswordHasher with Argon2id.
type Argon2Hasher struct {
	cfg Argon2Config
}

// NewArgon2Hasher validates cfg and returns a hasher using it for new digests.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := validateArgon2Config(cfg); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

func validateArgon2Config(cfg Argon2Config) error {
	if cfg.Memory < 8*1024 {
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidConfig)
	}
	if cfg.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	}
	if cfg.Parallelism == 0 {
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	}
	if cfg.SaltLength < 8 {
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	}
	if cfg.KeyLength < 16 {
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// Hash generates an Argon2id digest embedding the parameters, salt, and hash.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	cfg := h.cfg

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(sum)

	// Format: argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
	encoded := strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", cfg.Memory, cfg.Iterations, cfg.Parallelism),
		encodedSalt,
		encodedHash,
	}, "$")

	return encoded, nil
}

// Verify compares password against a stored digest using the parameters embedded in it.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	d, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), d.salt, d.cfg.Iterations, d.cfg.Memory, d.cfg.Parallelism, d.cfg.KeyLength)
	return subtle.ConstantTimeCompare(computed, d.sum) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other than the hasher's.
// Unreadable digests always need a rehash.
func (h *Argon2Hasher) NeedsRehash(encoded string) bool {
	d, err := decodeDigest(encoded)
	if err != nil {
		return true
	}
	return d.cfg != h.cfg
}

type digest struct {
	cfg  Argon2Config
	salt []byte
	sum  []byte
}

func decodeDigest(encoded string) (digest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return digest{}, errInvalidHashFormat
	}
	if parts[0] != argon2Variant {
		return digest{}, fmt.Errorf("argon2: unexpected variant %q", parts[0])
	}
	if parts[1] != argon2Version {
		return digest{}, fmt.Errorf("argon2: unsupported version %q", parts[1])
	}

	var cfg Argon2Config
	n, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism)
	if err != nil || n != 3 {
		return digest{}, fmt.Errorf("%w: parameters %q", errInvalidHashFormat, parts[2])
	}

	var d digest
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[3]); err != nil {
		return digest{}, fmt.Errorf("argon2: decode salt: %w", err)
	}
	if d.sum, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return digest{}, fmt.Errorf("argon2: decode hash: %w", err)
	}
	cfg.SaltLength = uint32(len(d.salt))
	cfg.KeyLength = uint32(len(d.sum))

	if err := validateArgon2Config(cfg); err != nil {
		return digest{}, err
	}
	d.cfg = cfg
	return d, nil
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
