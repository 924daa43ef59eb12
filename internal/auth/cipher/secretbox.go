package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// SecretBox is an authenticated Cipher backed by NaCl secretbox.
// The nonce is generated per call and prepended to the ciphertext.
type SecretBox struct {
	key [keySize]byte
}

// NewSecretBox builds a cipher from a hex-encoded 32-byte key.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("cipher: key is not valid hex: %w", err)
	}
	if len(raw) != keySize {
		return nil, errors.New("cipher: key must be 32 bytes")
	}

	var sb SecretBox
	copy(sb.key[:], raw)
	return &sb, nil
}

func (s *SecretBox) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("cipher: nonce generation failed: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *SecretBox) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}
