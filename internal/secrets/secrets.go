// Package secrets seals and opens sensitive values at rest. User credentials
// are encrypted with a server-wide key; backup archives are encrypted with a
// key derived from a per-user secret.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

var ErrDecrypt = errors.New("decryption failed")

// Box encrypts and decrypts short strings with a fixed 32-byte key.
type Box struct {
	key []byte
}

// NewBox builds a Box from a base64-encoded 32-byte key.
func NewBox(encodedKey string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("credential key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}
	return &Box{key: key}, nil
}

// Seal encrypts plaintext and returns a base64 string of nonce||ciphertext.
// Empty input seals to the empty string so unset credentials stay unset.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := encrypt(b.key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrDecrypt
	}
	plaintext, err := decrypt(b.key, raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptWithSecret encrypts data with a key derived from secret. The output
// is salt||nonce||ciphertext so decryption needs only the secret.
func EncryptWithSecret(secret string, data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	sealed, err := encrypt(key, data)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

// DecryptWithSecret reverses EncryptWithSecret. Returns ErrDecrypt when the
// secret is wrong or the payload was tampered with.
func DecryptWithSecret(secret string, payload []byte) ([]byte, error) {
	if len(payload) < saltSize {
		return nil, ErrDecrypt
	}
	key, err := deriveKey(secret, payload[:saltSize])
	if err != nil {
		return nil, err
	}
	return decrypt(key, payload[saltSize:])
}

func deriveKey(secret string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, 32)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(key, raw []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
