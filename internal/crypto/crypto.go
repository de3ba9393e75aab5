// internal/crypto/crypto.go
//
// This package encrypts secrets kept in the hosts file (stored private keys
// and their passphrases) with AES-256-GCM. The key is derived from the master
// password with scrypt and a random per-message salt.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// KEY_SIZE defines the size of the encryption key in bytes.
	KEY_SIZE = 32 // 32 bytes for AES-256

	// SALT_SIZE is the size of the random salt prepended to every message.
	SALT_SIZE = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrNoPassword is returned when a cipher is used without a master password.
var ErrNoPassword = errors.New("master password is not set")

// Cipher represents an AES-256-GCM cipher bound to a master password.
type Cipher struct {
	password []byte
}

// NewCipher creates a new Cipher for the given master password.
func NewCipher(password string) *Cipher {
	return &Cipher{password: []byte(password)}
}

func (c *Cipher) deriveKey(salt []byte) ([]byte, error) {
	if c == nil || len(c.password) == 0 {
		return nil, ErrNoPassword
	}
	key, err := scrypt.Key(c.password, salt, scryptN, scryptR, scryptP, KEY_SIZE)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %v", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}
	return aesGCM, nil
}

// Encrypt encrypts the plaintext and returns hex(salt | nonce | ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, SALT_SIZE)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %v", err)
	}

	key, err := c.deriveKey(salt)
	if err != nil {
		return "", err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %v", err)
	}

	combined := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aesGCM.Overhead())
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = aesGCM.Seal(combined, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(combined), nil
}

// Decrypt reverses Encrypt. A wrong password fails GCM authentication.
func (c *Cipher) Decrypt(encryptedHex string) (string, error) {
	combined, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %v", err)
	}
	if len(combined) < SALT_SIZE {
		return "", fmt.Errorf("ciphertext too short")
	}

	key, err := c.deriveKey(combined[:SALT_SIZE])
	if err != nil {
		return "", err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	rest := combined[SALT_SIZE:]
	nonceSize := aesGCM.NonceSize()
	if len(rest) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := aesGCM.Open(nil, rest[:nonceSize], rest[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %v", err)
	}
	return string(plaintext), nil
}
