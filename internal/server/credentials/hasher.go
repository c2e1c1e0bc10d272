// Package credentials hashes and verifies passwords with a peppered Argon2id.
//
// Hashes are stored in PHC string form:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
//
// The pepper never appears in the stored string. x/crypto/argon2 exposes no
// secret-key input, so the Argon2 password input is HMAC-SHA256(pepper,
// password) instead.
package credentials

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

// Upper bounds applied when parsing stored hashes.
const (
	maxMemoryKiB   = 1 << 20
	maxTime        = 64
	maxKeyLength   = 128
	maxSaltLength  = 128
	minPepperBytes = 16
)

var (
	ErrInvalidParams = errors.New("credentials: invalid argon2 parameters")
	ErrWeakPepper    = fmt.Errorf("credentials: pepper must be at least %d bytes", minPepperBytes)
	errMalformedHash = errors.New("credentials: malformed hash")
)

// Params are the Argon2id cost parameters. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follow the OWASP baseline for Argon2id.
func DefaultParams() Params {
	return Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func (p Params) validate() error {
	if p.Memory == 0 || p.Memory > maxMemoryKiB ||
		p.Time == 0 || p.Time > maxTime ||
		p.Parallelism == 0 ||
		p.SaltLength < 8 || p.SaltLength > maxSaltLength ||
		p.KeyLength < 16 || p.KeyLength > maxKeyLength {
		return ErrInvalidParams
	}
	return nil
}

// Hasher is safe for concurrent use.
type Hasher struct {
	pepper   []byte
	params   Params
	mockHash string
}

// NewHasher returns a Hasher keyed with pepper. The pepper must be at least
// 16 bytes and params must be within the supported Argon2id bounds.
func NewHasher(pepper []byte, params Params) (*Hasher, error) {
	if len(pepper) < minPepperBytes {
		return nil, ErrWeakPepper
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	h := &Hasher{pepper: append([]byte(nil), pepper...), params: params}
	h.mockHash = encode(params.Memory, params.Time, params.Parallelism,
		make([]byte, params.SaltLength), make([]byte, params.KeyLength))
	return h, nil
}

// Params returns the cost parameters new hashes are made with.
func (h *Hasher) Params() Params { return h.params }

// Hash derives a new PHC string with a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := h.derive(password, salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return encode(h.params.Memory, h.params.Time, h.params.Parallelism, salt, key), nil
}

// Verify reports whether password matches encoded. Malformed input is
// simply a mismatch.
func (h *Hasher) Verify(password, encoded string) bool {
	p, err := decode(encoded)
	if err != nil {
		return false
	}

	key := h.derive(password, p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1
}

// MockHash is a well-formed hash with the configured cost that no password
// matches. Verifying against it takes as long as verifying a real hash.
func (h *Hasher) MockHash() string {
	return h.mockHash
}

func (h *Hasher) derive(password string, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return argon2.IDKey(mac.Sum(nil), salt, time, memory, threads, keyLen)
}

func encode(memory, time uint32, threads uint8, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return nil, errMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errMalformedHash
	}

	p := &phc{}
	seen := 0
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errMalformedHash
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 || n > maxMemoryKiB {
				return nil, errMalformedHash
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 || n > maxTime {
				return nil, errMalformedHash
			}
			p.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n == 0 {
				return nil, errMalformedHash
			}
			p.parallelism = uint8(n)
		default:
			return nil, errMalformedHash
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errMalformedHash
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) == 0 || len(p.salt) > maxSaltLength {
		return nil, errMalformedHash
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) < 16 || len(p.hash) > maxKeyLength {
		return nil, errMalformedHash
	}
	return p, nil
}
