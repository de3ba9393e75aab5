// internal/keys/store.go

package keys

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/nonomal/termora-sub000/internal/crypto"
	"github.com/nonomal/termora-sub000/internal/models"
	"golang.org/x/crypto/ssh"
)

// Store zamienia referencje kluczy z opisu hosta na gotowe signery.
// Materiał klucza jest odczytywany dopiero w chwili łączenia.
type Store struct {
	mu     sync.RWMutex
	keys   []models.Key
	cipher *crypto.Cipher
}

// NewStore tworzy resolver kluczy. cipher może być nil, jeśli żaden klucz
// nie jest przechowywany w pliku hostów.
func NewStore(keys []models.Key, cipher *crypto.Cipher) *Store {
	return &Store{keys: keys, cipher: cipher}
}

func (s *Store) find(ref string) (models.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.ID == ref {
			return k, true
		}
	}
	for _, k := range s.keys {
		if k.Description == ref {
			return k, true
		}
	}
	return models.Key{}, false
}

// Signer materializuje klucz o podanym identyfikatorze lub opisie
func (s *Store) Signer(ref string) (ssh.Signer, error) {
	key, ok := s.find(ref)
	if !ok {
		return nil, fmt.Errorf("key %q not found", ref)
	}

	var pem []byte
	if key.IsLocal() {
		data, err := key.GetKeyData(s.cipher)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key %q: %v", key.Description, err)
		}
		pem = []byte(data)
	} else {
		data, err := os.ReadFile(key.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %v", err)
		}
		pem = data
	}

	passphrase, err := key.GetPassphrase(s.cipher)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt passphrase: %v", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key %q is encrypted and no passphrase is stored", key.Description)
		}
		return nil, fmt.Errorf("failed to parse SSH key: %v", err)
	}
	return signer, nil
}
