package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks values produced by Sealer.Seal.
const sealedPrefix = "xc1:"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// GenerateKey returns a new random 32-byte key, hex encoded.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext and the result is base64 encoded.
func Encrypt(plaintext []byte, hexKey string) (string, error) {
	aead, err := newAEAD(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encoded, hexKey string) ([]byte, error) {
	aead, err := newAEAD(hexKey)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, ErrMalformedCiphertext
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newAEAD(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}

// Sealer protects string secrets stored in the database. A Sealer with no
// key passes values through unchanged.
type Sealer struct {
	key string
}

func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey != "" {
		if _, err := newAEAD(hexKey); err != nil {
			return nil, err
		}
	}
	return &Sealer{key: hexKey}, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && s.key != ""
}

func (s *Sealer) Seal(value string) (string, error) {
	if !s.Enabled() || value == "" {
		return value, nil
	}
	enc, err := Encrypt([]byte(value), s.key)
	if err != nil {
		return "", err
	}
	return sealedPrefix + enc, nil
}

// Open returns the plaintext for a sealed value. Values without the sealed
// prefix are returned as-is so rows written before a key was configured
// stay readable.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", errors.New("sealed value but no encryption key configured")
	}
	plain, err := Decrypt(strings.TrimPrefix(value, sealedPrefix), s.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
