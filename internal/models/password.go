// internal/models/password.go

package models

import (
	"errors"
	"strings"

	"github.com/nonomal/termora-sub000/internal/crypto"
)

// EncryptedPrefix oznacza sekret zaszyfrowany hasłem głównym, np. "enc:ab12..."
const EncryptedPrefix = "enc:"

// IsEncrypted mówi czy sekret trzeba odszyfrować przed użyciem
func IsEncrypted(secret string) bool {
	return strings.HasPrefix(secret, EncryptedPrefix)
}

// SealPassword szyfruje hasło do zapisu w pliku hostów
func SealPassword(plain string, cipher *crypto.Cipher) (string, error) {
	if plain == "" {
		return "", errors.New("password cannot be empty")
	}
	if cipher == nil {
		return "", errors.New("no master password")
	}
	encrypted, err := cipher.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + encrypted, nil
}

// OpenPassword zwraca jawne hasło; niezaszyfrowane przechodzi bez zmian
func OpenPassword(secret string, cipher *crypto.Cipher) (string, error) {
	if !IsEncrypted(secret) {
		return secret, nil
	}
	if cipher == nil {
		return "", errors.New("encrypted password requires the master password")
	}
	return cipher.Decrypt(strings.TrimPrefix(secret, EncryptedPrefix))
}

// HasEncryptedSecrets sprawdza hasła logowania i proxy hosta
func (h *Host) HasEncryptedSecrets() bool {
	return (h.Authentication.Type != AuthPublicKey && IsEncrypted(h.Authentication.Password)) ||
		IsEncrypted(h.Proxy.Password)
}

// DecryptSecrets odszyfrowuje hasła hosta w miejscu. Dla PublicKey pole
// Password to identyfikator klucza, więc zostaje nietknięte.
func (h *Host) DecryptSecrets(cipher *crypto.Cipher) error {
	if h.Authentication.Type != AuthPublicKey {
		plain, err := OpenPassword(h.Authentication.Password, cipher)
		if err != nil {
			return err
		}
		h.Authentication.Password = plain
	}
	plain, err := OpenPassword(h.Proxy.Password, cipher)
	if err != nil {
		return err
	}
	h.Proxy.Password = plain
	return nil
}
