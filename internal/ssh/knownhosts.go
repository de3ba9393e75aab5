// internal/ssh/knownhosts.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TrustOnFirstUse zwraca HostKeyCallback oparty na pliku known_hosts.
// Nieznany host jest dopisywany do pliku, a klucz niezgodny z zapisanym
// kończy połączenie błędem.
func TrustOnFirstUse(path string) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %v", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open known_hosts file %s: %v", path, err)
	}
	f.Close()

	// chroni plik przed podwójnym dopisaniem tego samego hosta
	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		mu.Lock()
		defer mu.Unlock()

		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("failed to create hostKeyCallback: %v", err)
		}

		err = check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, key)
		}
		return err
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %v", path, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{hostname}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %v", path, err)
	}
	return nil
}
