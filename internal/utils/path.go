package utils

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// ToSFTPPath converts local path to SFTP path format
func ToSFTPPath(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(p, "\\", "/")
	}
	return p
}

// ToLocalPath converts SFTP path to local path format
func ToLocalPath(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(p, "/", "\\")
	}
	return p
}

// ExpandHome zamienia początkowe "~" na katalog domowy użytkownika
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~\\") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// RemoteTarget zwraca ścieżkę zdalną dla wysyłanego pliku. Gdy dir kończy
// się separatorem, dokleja nazwę pliku lokalnego.
func RemoteTarget(localPath, remote string) string {
	remote = ToSFTPPath(remote)
	if remote == "" || strings.HasSuffix(remote, "/") {
		return path.Join(remote, filepath.Base(localPath))
	}
	return remote
}

// LocalTarget działa jak RemoteTarget w drugą stronę
func LocalTarget(remotePath, local string) string {
	local = ExpandHome(local)
	if local == "" {
		return path.Base(ToSFTPPath(remotePath))
	}
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return filepath.Join(local, path.Base(ToSFTPPath(remotePath)))
	}
	return local
}
