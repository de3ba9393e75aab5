// internal/config/config.go

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nonomal/termora-sub000/internal/crypto"
	"github.com/nonomal/termora-sub000/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFileName = "hosts.json"
	DefaultConfigDir      = ".config/termora"
)

var ErrHostNotFound = errors.New("host not found")

// Manager udostępnia rekordy hostów i kluczy tylko do odczytu.
// Edycja hostów należy do warstwy UI, nie do rdzenia.
type Manager struct {
	configPath string

	mu     sync.RWMutex
	config *models.Config
}

// NewManager tworzy nowego menedżera konfiguracji
func NewManager(configPath string) *Manager {
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			// Fallback do bieżącego katalogu jeśli nie można uzyskać ścieżki domowej
			configPath = DefaultConfigFileName
		}
	}

	return &Manager{
		configPath: configPath,
		config:     &models.Config{},
	}
}

// Path zwraca ścieżkę pliku hostów
func (m *Manager) Path() string {
	return m.configPath
}

// Load wczytuje plik hostów w formacie JSON lub YAML (po rozszerzeniu).
// Brak pliku oznacza pustą konfigurację.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.mu.Lock()
			m.config = &models.Config{}
			m.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(m.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	for i, host := range cfg.Hosts {
		if host.ID == "" {
			return fmt.Errorf("host %d (%q) has no id", i, host.Name)
		}
	}
	for i := range cfg.Keys {
		if err := cfg.Keys[i].Validate(); err != nil {
			return fmt.Errorf("invalid key %d (%q): %v", i, cfg.Keys[i].Description, err)
		}
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// GetHosts zwraca hosty, z których można otworzyć sesję
func (m *Manager) GetHosts() []models.Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hosts := make([]models.Host, 0, len(m.config.Hosts))
	for _, host := range m.config.Hosts {
		if host.Connectable() {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// LookupHost szuka hosta po ID; używane przy rozwijaniu łańcucha jump hostów
func (m *Manager) LookupHost(id string) (*models.Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.config.Hosts {
		host := m.config.Hosts[i]
		if host.ID == id && !host.Deleted {
			return &host, true
		}
	}
	return nil, false
}

// FindHost szuka hosta po ID albo nazwie
func (m *Manager) FindHost(idOrName string) (models.Host, error) {
	if host, ok := m.LookupHost(idOrName); ok {
		return *host, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, host := range m.config.Hosts {
		if host.Name == idOrName && !host.Deleted {
			return host, nil
		}
	}
	return models.Host{}, fmt.Errorf("%w: %s", ErrHostNotFound, idOrName)
}

// GetKeys zwraca listę wszystkich kluczy
func (m *Manager) GetKeys() []models.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]models.Key, len(m.config.Keys))
	copy(keys, m.config.Keys)
	return keys
}

// NeedsCipher mówi czy plik hostów zawiera sekrety zaszyfrowane hasłem głównym
func (m *Manager) NeedsCipher() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.config.Keys {
		if m.config.Keys[i].IsLocal() {
			return true
		}
	}
	for i := range m.config.Hosts {
		if m.config.Hosts[i].HasEncryptedSecrets() {
			return true
		}
	}
	return false
}

// DecryptSecrets odszyfrowuje hasła wszystkich hostów w pamięci.
// Klucze pozostają zaszyfrowane do chwili użycia.
func (m *Manager) DecryptSecrets(cipher *crypto.Cipher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.config.Hosts {
		host := &m.config.Hosts[i]
		if err := host.DecryptSecrets(cipher); err != nil {
			return fmt.Errorf("failed to decrypt secrets of host %q: %v", host.Name, err)
		}
	}
	return nil
}

func GetDefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

func GetDefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
