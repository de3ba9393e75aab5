package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/nonomal/termora-sub000/internal/crypto"
	"github.com/nonomal/termora-sub000/internal/models"
	"golang.org/x/crypto/ssh"
)

func generateKey(t *testing.T, passphrase string) (ssh.PublicKey, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var block *pem.Block
	if passphrase != "" {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	}
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	return sshPub, pem.EncodeToMemory(block)
}

func TestSignerFromFile(t *testing.T) {
	pub, pemBytes := generateKey(t, "")
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		t.Fatal(err)
	}

	store := NewStore([]models.Key{{ID: "k1", Description: "file key", Path: path}}, nil)
	signer, err := store.Signer("k1")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if ssh.FingerprintSHA256(signer.PublicKey()) != ssh.FingerprintSHA256(pub) {
		t.Error("signer does not match generated key")
	}

	// lookup by description also works
	if _, err := store.Signer("file key"); err != nil {
		t.Errorf("Signer by description: %v", err)
	}
}

func TestSignerFromEncryptedData(t *testing.T) {
	pub, pemBytes := generateKey(t, "hunter2")
	cipher := crypto.NewCipher("master")
	key, err := models.NewKey("stored", "", string(pemBytes), "hunter2", cipher)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	store := NewStore([]models.Key{*key}, cipher)
	signer, err := store.Signer(key.ID)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if ssh.FingerprintSHA256(signer.PublicKey()) != ssh.FingerprintSHA256(pub) {
		t.Error("signer does not match generated key")
	}
}

func TestSignerErrors(t *testing.T) {
	_, pemBytes := generateKey(t, "secret")
	path := filepath.Join(t.TempDir(), "id_locked")
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		t.Fatal(err)
	}

	store := NewStore([]models.Key{
		{ID: "locked", Path: path},
		{ID: "missing", Path: filepath.Join(t.TempDir(), "nope")},
	}, nil)

	if _, err := store.Signer("unknown"); err == nil {
		t.Error("expected error for unknown reference")
	}
	if _, err := store.Signer("locked"); err == nil {
		t.Error("expected error for key without stored passphrase")
	}
	if _, err := store.Signer("missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
