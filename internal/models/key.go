package models

import (
	"errors"

	"github.com/google/uuid"
	"github.com/nonomal/termora-sub000/internal/crypto"
)

// Key to zapis klucza prywatnego, do którego odwołuje się Authentication
// typu PublicKey. Klucz jest albo plikiem na dysku, albo zaszyfrowaną treścią.
type Key struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`             // Ścieżka do klucza (jeśli używamy zewnętrznego)
	KeyData     string `json:"key_data,omitempty" yaml:"key_data,omitempty"`     // Zaszyfrowana zawartość klucza
	Passphrase  string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"` // Zaszyfrowane hasło do klucza
}

// NewKey tworzy nową instancję Key
func NewKey(description, path, keyData, passphrase string, cipher *crypto.Cipher) (*Key, error) {
	if description == "" {
		return nil, errors.New("description cannot be empty")
	}

	// Sprawdzenie czy nie podano jednocześnie path i keyData
	if path != "" && keyData != "" {
		return nil, errors.New("cannot specify both path and key data")
	}

	if path == "" && keyData == "" {
		return nil, errors.New("either path or key data must be provided")
	}

	key := &Key{
		ID:          uuid.NewString(),
		Description: description,
		Path:        path,
	}

	// Jeśli podano dane klucza, szyfrujemy je
	if keyData != "" {
		encrypted, err := cipher.Encrypt(keyData)
		if err != nil {
			return nil, err
		}
		key.KeyData = encrypted
	}
	if passphrase != "" {
		encrypted, err := cipher.Encrypt(passphrase)
		if err != nil {
			return nil, err
		}
		key.Passphrase = encrypted
	}

	return key, nil
}

// Validate sprawdza poprawność danych Key
func (k *Key) Validate() error {
	if k.ID == "" {
		return errors.New("key id cannot be empty")
	}

	if k.Path == "" && k.KeyData == "" {
		return errors.New("either path or key data must be provided")
	}

	if k.Path != "" && k.KeyData != "" {
		return errors.New("cannot have both path and key data")
	}

	return nil
}

// GetKeyData zwraca odszyfrowane dane klucza
func (k *Key) GetKeyData(cipher *crypto.Cipher) (string, error) {
	if k.KeyData == "" {
		return "", errors.New("no key data stored")
	}
	return cipher.Decrypt(k.KeyData)
}

// GetPassphrase zwraca odszyfrowane hasło klucza lub pusty napis
func (k *Key) GetPassphrase(cipher *crypto.Cipher) (string, error) {
	if k.Passphrase == "" {
		return "", nil
	}
	return cipher.Decrypt(k.Passphrase)
}

// IsLocal sprawdza czy klucz jest przechowywany w pliku hostów
func (k *Key) IsLocal() bool {
	return k.KeyData != ""
}
