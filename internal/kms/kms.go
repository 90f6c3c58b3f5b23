// Package kms seals uploaded certificates with AES-256-GCM before they are
// embedded in the report registry. The master key is a 32-byte value given
// as a 64-char hex string (kms.key / PORTAL_KMS_KEY).
package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Encryptor holds an AES-256-GCM master key.
type Encryptor struct {
	aead cipher.AEAD
}

// New creates an Encryptor from a 64-char hex-encoded 32-byte master key.
func New(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("kms: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("kms: master key must be 32 bytes (got %d)", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("kms: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("kms: gcm: %w", err)
	}
	return &Encryptor{aead: gcm}, nil
}

// Seal encrypts plaintext bound to aad (the report id) and returns
// base64(nonce || ciphertext).
func (e *Encryptor) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("kms: nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It fails if the envelope was altered or aad differs.
func (e *Encryptor) Open(envelope string, aad []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("kms: decode envelope: %w", err)
	}
	ns := e.aead.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("kms: ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, data[:ns], data[ns:], aad)
	if err != nil {
		return nil, fmt.Errorf("kms: decrypt: %w", err)
	}
	return plaintext, nil
}
