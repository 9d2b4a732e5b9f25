package cloudaccount

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spendsight/spendsight/internal/domain"
)

const nonceSize = 12 // standard GCM nonce length

// DeriveKey derives a 32-byte AES-256 key from the master secret using SHA-256.
func DeriveKey(masterSecret string) []byte {
	h := sha256.Sum256([]byte(masterSecret))
	return h[:]
}

// SealCredentials serializes and encrypts a credential map with AES-256-GCM.
// The 12-byte nonce is prepended to the ciphertext.
func SealCredentials(creds map[string]string, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}

	// nonce is prepended to ciphertext
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenCredentials decrypts a blob produced by SealCredentials (nonce || ciphertext)
// and deserializes the credential map. Tampered or malformed blobs yield
// domain.ErrDecryptionFailure; the plaintext is never logged.
func OpenCredentials(blob, key []byte) (map[string]string, error) {
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("%w: blob too short", domain.ErrDecryptionFailure)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := blob[:nonceSize]
	ct := blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm.Open: %v", domain.ErrDecryptionFailure, err)
	}

	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", domain.ErrDecryptionFailure)
	}

	return creds, nil
}
