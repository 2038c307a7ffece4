package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minTime       uint32 = 1
	minThreads    uint8  = 1
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	algorithmID          = "argon2id"

	versionFormat = "v=%d"
	paramsFormat  = "m=%d,t=%d,p=%d"

	// DefaultMaxPasswordBytes bounds the input fed to argon2 when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrEmptyPassword is returned by Hash for a zero-length password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the input exceeds MaxPasswordBytes.
	// No verifier can match such an input.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedVerifier wraps every decoding failure of a stored verifier.
	ErrMalformedVerifier = errors.New("malformed password verifier")
)

// Config holds the argon2id cost parameters used for new verifiers.
//
// Memory is in KiB. MaxPasswordBytes of zero means DefaultMaxPasswordBytes.
type Config struct {
	Memory           uint32 `mapstructure:"memory_kb" validate:"gte=8192"`
	Time             uint32 `mapstructure:"time" validate:"gte=1"`
	Parallelism      uint8  `mapstructure:"parallelism" validate:"gte=1"`
	SaltLength       uint32 `mapstructure:"salt_length" validate:"gte=16"`
	KeyLength        uint32 `mapstructure:"key_length" validate:"gte=16"`
	MaxPasswordBytes int    `mapstructure:"max_password_bytes" validate:"gte=0"`
}

// DefaultConfig returns parameters sized for an interactive client: strong
// enough to slow offline guessing against a stolen verifier, light enough
// to run on every login and unlock.
func DefaultConfig() Config {
	return Config{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory %d KiB below minimum %d", c.Memory, minMemoryKB)
	case c.Time < minTime:
		return fmt.Errorf("password: time %d below minimum %d", c.Time, minTime)
	case c.Parallelism < minThreads:
		return fmt.Errorf("password: parallelism %d below minimum %d", c.Parallelism, minThreads)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length %d below minimum %d", c.SaltLength, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length %d below minimum %d", c.KeyLength, minKeyLength)
	case c.MaxPasswordBytes < 0:
		return fmt.Errorf("password: max password bytes %d is negative", c.MaxPasswordBytes)
	}
	return nil
}

func (c Config) costs() costs {
	return costs{memory: c.Memory, time: c.Time, threads: c.Parallelism}
}

// costs are the argon2id work factors recorded in every verifier.
type costs struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (c costs) below(floor costs) bool {
	return c.memory < floor.memory || c.time < floor.time || c.threads < floor.threads
}

// verifier is the decoded form of a stored PHC string.
type verifier struct {
	costs
	salt []byte
	key  []byte
}

func (v verifier) derive(pw string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(pw), v.salt, v.time, v.memory, v.threads, keyLen)
}

// String renders v as $argon2id$v=19$m=..,t=..,p=..$salt$key with unpadded
// base64 fields.
func (v verifier) String() string {
	return strings.Join([]string{
		"",
		algorithmID,
		fmt.Sprintf(versionFormat, argon2.Version),
		fmt.Sprintf(paramsFormat, v.memory, v.time, v.threads),
		base64.RawStdEncoding.EncodeToString(v.salt),
		base64.RawStdEncoding.EncodeToString(v.key),
	}, "$")
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedVerifier, what)
}

// decodeVerifier parses a PHC string. Fields must be in canonical form;
// padded base64 is accepted for verifiers written by older encoders.
func decodeVerifier(encoded string) (verifier, error) {
	rest, ok := strings.CutPrefix(encoded, "$"+algorithmID+"$")
	if !ok {
		return verifier{}, malformed("not an argon2id verifier")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return verifier{}, malformed("field count")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], versionFormat, &version); err != nil || fmt.Sprintf(versionFormat, version) != fields[0] {
		return verifier{}, malformed("version")
	}
	if version != argon2.Version {
		return verifier{}, malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var v verifier
	if _, err := fmt.Sscanf(fields[1], paramsFormat, &v.memory, &v.time, &v.threads); err != nil ||
		fmt.Sprintf(paramsFormat, v.memory, v.time, v.threads) != fields[1] {
		return verifier{}, malformed("parameters")
	}
	if v.below(costs{memory: minMemoryKB, time: minTime, threads: minThreads}) {
		return verifier{}, malformed("parameters below minimum")
	}

	var err error
	if v.salt, err = decodeField(fields[2]); err != nil || uint32(len(v.salt)) < minSaltLength {
		return verifier{}, malformed("salt")
	}
	if v.key, err = decodeField(fields[3]); err != nil || len(v.key) == 0 {
		return verifier{}, malformed("key")
	}
	return v, nil
}

func decodeField(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Argon2 derives and checks local password verifiers in PHC string form.
// It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a verifier deriver.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) checkLength(pw string) error {
	if len(pw) > a.config.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash derives a salted verifier from password. The password policy belongs
// to the identity server, so any non-empty password is accepted here. The
// bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if err := a.checkLength(password); err != nil {
		return "", err
	}

	v := verifier{costs: a.config.costs(), salt: make([]byte, a.config.SaltLength)}
	if _, err := rand.Read(v.salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	v.key = v.derive(password, a.config.KeyLength)
	return v.String(), nil
}

// Verify reports whether password matches encoded. A malformed verifier
// yields ErrMalformedVerifier; a mismatch is (false, nil). An input longer
// than MaxPasswordBytes yields ErrPasswordTooLong before any decoding.
func (a *Argon2) Verify(password string, encoded string) (bool, error) {
	if err := a.checkLength(password); err != nil {
		return false, err
	}
	v, err := decodeVerifier(encoded)
	if err != nil {
		return false, err
	}
	got := v.derive(password, uint32(len(v.key)))
	return subtle.ConstantTimeCompare(got, v.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was derived with weaker costs or a
// different key length than the configured ones.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	v, err := decodeVerifier(encoded)
	if err != nil {
		return false, err
	}
	return v.below(a.config.costs()) || uint32(len(v.key)) != a.config.KeyLength, nil
}
