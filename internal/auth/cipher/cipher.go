package cipher

import "errors"

// ErrDecrypt is returned when ciphertext cannot be authenticated with
// the current key. Callers must treat it as "credential unusable", not
// as corrupted-but-usable data.
var ErrDecrypt = errors.New("cipher: decryption failed")

// Cipher encrypts token material before it reaches storage. Implementations
// must be safe for concurrent use and must never return plaintext on a
// failed authentication check.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
