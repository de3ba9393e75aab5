// internal/config/settings.go

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix poprzedza nazwy zmiennych środowiskowych, np. TERMORA_LOG_LEVEL
const EnvPrefix = "TERMORA"

type Settings struct {
	LocalShell            string `envconfig:"LOCAL_SHELL" default:""`
	AutoCloseOnDisconnect bool   `envconfig:"AUTO_CLOSE_ON_DISCONNECT" default:"false"`

	// Sesje i czytnik
	ReadBackoff         time.Duration `envconfig:"READ_BACKOFF" default:"10ms"`
	StartupCommandDelay time.Duration `envconfig:"STARTUP_COMMAND_DELAY" default:"250ms"`
	ConnectTimeout      time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s"`
	AuthTimeout         time.Duration `envconfig:"AUTH_TIMEOUT" default:"150s"`
	SerialPollInterval  time.Duration `envconfig:"SERIAL_POLL_INTERVAL" default:"1s"`

	// Pliki
	HostsPath      string `envconfig:"HOSTS_PATH" default:""`
	KnownHostsPath string `envconfig:"KNOWN_HOSTS_PATH" default:""`
	LogPath        string `envconfig:"LOG_PATH" default:""`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	DownloadDir    string `envconfig:"DOWNLOAD_DIR" default:""`

	// Hasło główne do odszyfrowania kluczy zapisanych w pliku hostów
	MasterPassword string `envconfig:"MASTER_PASSWORD" default:""`
}

// LoadSettings wczytuje ustawienia ze zmiennych środowiskowych i uzupełnia
// puste ścieżki domyślnymi lokalizacjami w katalogu konfiguracyjnym.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return s, fmt.Errorf("failed to load settings: %v", err)
	}

	if s.HostsPath == "" || s.KnownHostsPath == "" || s.LogPath == "" {
		dir, err := GetDefaultConfigDir()
		if err != nil {
			return s, err
		}
		if s.HostsPath == "" {
			s.HostsPath = filepath.Join(dir, DefaultConfigFileName)
		}
		if s.KnownHostsPath == "" {
			s.KnownHostsPath = filepath.Join(dir, "ssh", "known_hosts")
		}
		if s.LogPath == "" {
			s.LogPath = filepath.Join(dir, "termora.log")
		}
	}
	return s, nil
}
