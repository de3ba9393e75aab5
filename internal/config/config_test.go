package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nonomal/termora-sub000/internal/crypto"
	"github.com/nonomal/termora-sub000/internal/models"
)

const hostsJSON = `{
  "hosts": [
    {"id": "f1", "name": "servers", "protocol": "Folder"},
    {"id": "h1", "name": "web", "protocol": "SSH", "host": "10.0.0.1", "port": 2222,
     "username": "root", "authentication": {"type": "Password", "password": "pw"},
     "options": {"jumpHosts": ["h2"], "heartbeatInterval": 30},
     "tunnelings": [{"name": "db", "type": "Local", "sourceHost": "127.0.0.1", "sourcePort": 5432,
                     "destinationHost": "db", "destinationPort": 5432}]},
    {"id": "h2", "name": "bastion", "protocol": "SSH", "host": "bastion"},
    {"id": "h3", "name": "gone", "protocol": "SSH", "deleted": true}
  ],
  "keys": [{"id": "k1", "description": "deploy", "path": "/tmp/id"}]
}`

const hostsYAML = `
hosts:
  - id: s1
    name: console
    protocol: Serial
    options:
      serialComm:
        port: /dev/ttyUSB0
        baudRate: 115200
        dataBits: 8
        stopBits: "1"
        parity: None
        flowControl: None
  - id: l1
    name: shell
    protocol: Local
    options:
      startupCommand: uptime
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "hosts.json", hostsJSON))
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	hosts := m.GetHosts()
	if len(hosts) != 2 {
		t.Fatalf("GetHosts() returned %d hosts, want 2 (folder and deleted skipped)", len(hosts))
	}

	web, err := m.FindHost("web")
	if err != nil {
		t.Fatalf("FindHost(web): %v", err)
	}
	if web.Port != 2222 || web.Authentication.Type != models.AuthPassword {
		t.Errorf("unexpected host: %+v", web)
	}
	if len(web.Tunnelings) != 1 || web.Tunnelings[0].Source() != "127.0.0.1:5432" {
		t.Errorf("tunnels = %+v", web.Tunnelings)
	}

	if _, ok := m.LookupHost("h2"); !ok {
		t.Error("LookupHost(h2) not found")
	}
	if _, ok := m.LookupHost("h3"); ok {
		t.Error("deleted host must not be returned")
	}
	if _, err := m.FindHost("nope"); !errors.Is(err, ErrHostNotFound) {
		t.Errorf("FindHost(nope) err = %v", err)
	}
	if keys := m.GetKeys(); len(keys) != 1 || keys[0].ID != "k1" {
		t.Errorf("GetKeys() = %+v", keys)
	}
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "hosts.yaml", hostsYAML))
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	console, err := m.FindHost("s1")
	if err != nil {
		t.Fatalf("FindHost: %v", err)
	}
	if console.Protocol != models.ProtocolSerial || console.Options.SerialComm.BaudRate != 115200 {
		t.Errorf("unexpected serial host: %+v", console)
	}
	shell, err := m.FindHost("shell")
	if err != nil {
		t.Fatalf("FindHost(shell): %v", err)
	}
	if shell.Options.StartupCommand != "uptime" {
		t.Errorf("startup command = %q", shell.Options.StartupCommand)
	}
}

func TestDecryptSecrets(t *testing.T) {
	cipher := crypto.NewCipher("master")
	sealed, err := models.SealPassword("pw", cipher)
	if err != nil {
		t.Fatal(err)
	}
	content := `{"hosts": [{"id": "h1", "name": "web", "protocol": "SSH", "host": "10.0.0.1",
	  "authentication": {"type": "Password", "password": "` + sealed + `"}}]}`

	m := NewManager(writeFile(t, "hosts.json", content))
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.NeedsCipher() {
		t.Fatal("NeedsCipher() = false with an encrypted password")
	}
	if err := m.DecryptSecrets(crypto.NewCipher("wrong")); err == nil {
		t.Fatal("wrong master password accepted")
	}
	if err := m.DecryptSecrets(cipher); err != nil {
		t.Fatalf("DecryptSecrets: %v", err)
	}
	web, _ := m.LookupHost("h1")
	if web.Authentication.Password != "pw" {
		t.Errorf("password = %q", web.Authentication.Password)
	}
	if m.NeedsCipher() {
		t.Error("NeedsCipher() still true after decryption")
	}
}

func TestLoadMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.GetHosts()) != 0 {
		t.Error("expected empty host list")
	}
}

func TestLoadRejectsHostWithoutID(t *testing.T) {
	m := NewManager(writeFile(t, "hosts.json", `{"hosts":[{"name":"x","protocol":"SSH"}]}`))
	if err := m.Load(); err == nil {
		t.Fatal("expected error for host without id")
	}
}

func TestLoadRejectsInvalidKey(t *testing.T) {
	m := NewManager(writeFile(t, "hosts.json", `{"keys": [{"id": "k1", "description": "empty"}]}`))
	if err := m.Load(); err == nil {
		t.Fatal("key without path or data accepted")
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TERMORA_LOG_LEVEL", "debug")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ReadBackoff != 10*time.Millisecond {
		t.Errorf("ReadBackoff = %v", s.ReadBackoff)
	}
	if s.StartupCommandDelay != 250*time.Millisecond {
		t.Errorf("StartupCommandDelay = %v", s.StartupCommandDelay)
	}
	if s.SerialPollInterval != time.Second {
		t.Errorf("SerialPollInterval = %v", s.SerialPollInterval)
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
	if filepath.Base(s.HostsPath) != DefaultConfigFileName || filepath.Base(s.KnownHostsPath) != "known_hosts" {
		t.Errorf("paths not defaulted: %+v", s)
	}
}
