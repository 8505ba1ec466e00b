// Package vault seals platform credentials before they reach durable
// storage. Key material is loaded once at process start and never leaves
// the package.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"github.com/crossposthq/crosspost/internal/apperrors"
)

type Vault struct {
	key []byte
}

// New validates the key length up front so a misconfigured deployment
// fails at startup instead of on the first publish.
func New(key []byte) (*Vault, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, &apperrors.CryptoError{Op: "init", Err: errors.New("key must be 16, 24, or 32 bytes")}
	}
	return &Vault{key: key}, nil
}

// Seal encrypts plaintext with AES-GCM and returns base64(nonce||ciphertext).
func (v *Vault) Seal(plaintext []byte) (string, error) {
	aesGCM, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &apperrors.CryptoError{Op: "seal", Err: err}
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// Open decrypts a sealed credential. Any malformed input, truncated
// payload, or key mismatch comes back as a CryptoError; the caller treats
// it as a hard failure for that single credential.
func (v *Vault) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", &apperrors.CryptoError{Op: "open", Err: err}
	}

	aesGCM, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", &apperrors.CryptoError{Op: "open", Err: errors.New("ciphertext too short")}
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &apperrors.CryptoError{Op: "open", Err: err}
	}

	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, &apperrors.CryptoError{Op: "cipher", Err: err}
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &apperrors.CryptoError{Op: "cipher", Err: err}
	}
	return aesGCM, nil
}
