// Package crypto seals secret values at rest, such as the cookie values in
// a saved session credential.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	iterations = 100000
	keySize    = 32 // AES-256

	// sealedPrefix marks a sealed value so plaintext files keep loading.
	sealedPrefix = "sealed:v1:"
)

// ErrOpen means a sealed value could not be opened with the configured key.
var ErrOpen = errors.New("cannot open sealed value")

// Sealer encrypts and decrypts values with AES-GCM under a key derived from
// a passphrase. A nil Sealer passes values through unchanged.
type Sealer struct {
	key  []byte
	salt []byte
}

// NewSalt returns a random salt to store next to sealed values.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives a key from passphrase and salt. An empty passphrase
// returns nil.
func NewSealer(passphrase string, salt []byte) *Sealer {
	if passphrase == "" {
		return nil
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
	return &Sealer{key: key, salt: append([]byte(nil), salt...)}
}

// Salt returns the salt the key was derived with, base64 encoded.
func (s *Sealer) Salt() string {
	if s == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.salt)
}

// IsSealed reports whether v was produced by Seal.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Unsealed values are returned as is.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: no key configured", ErrOpen)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrOpen)
	}

	nonce, body := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return string(plaintext), nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SealMap seals every value of m into a new map.
func (s *Sealer) SealMap(m map[string]string) (map[string]string, error) {
	if s == nil || len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		sealed, err := s.Seal(v)
		if err != nil {
			return nil, fmt.Errorf("sealing %s: %w", k, err)
		}
		out[k] = sealed
	}
	return out, nil
}

// OpenMap opens every value of m into a new map.
func (s *Sealer) OpenMap(m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		opened, err := s.Open(v)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", k, err)
		}
		out[k] = opened
	}
	return out, nil
}
