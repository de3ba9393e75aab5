// internal/transfer/sftp.go

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/nonomal/termora-sub000/internal/utils"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const bufferSize = 128 * 1024

// Progress reprezentuje postęp transferu pliku
type Progress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	StartTime        time.Time
}

type ProgressFunc func(Progress)

// Transfer przesyła pojedyncze pliki po otwartym połączeniu SSH
type Transfer interface {
	Upload(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error
	Download(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error
	Close() error
}

// SFTP korzysta z podsystemu sftp istniejącego połączenia
type SFTP struct {
	client *sftp.Client
}

func NewSFTP(conn *ssh.Client) (*SFTP, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %v", err)
	}
	return &SFTP{client: client}, nil
}

// Upload wysyła plik na serwer; gdy remotePath jest katalogiem, plik trafia
// do niego pod swoją nazwą
func (t *SFTP) Upload(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}
	if fileInfo.IsDir() {
		return t.uploadDirectory(ctx, localPath, remotePath, progress)
	}

	remotePath = utils.RemoteTarget(localPath, remotePath)
	if info, err := t.client.Stat(remotePath); err == nil && info.IsDir() {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	dstFile, err := t.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %v", err)
	}
	defer dstFile.Close()

	p := Progress{
		FileName:   filepath.Base(localPath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}
	if err := copyWithProgress(ctx, dstFile, srcFile, &p, progress); err != nil {
		return err
	}
	return nil
}

// uploadDirectory kopiuje cały katalog na serwer
func (t *SFTP) uploadDirectory(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error {
	if remotePath == "" {
		remotePath = filepath.Base(localPath)
	}
	return filepath.Walk(localPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		target := path.Join(utils.ToSFTPPath(remotePath), utils.ToSFTPPath(relPath))

		if info.IsDir() {
			if err := t.client.MkdirAll(target); err != nil {
				return fmt.Errorf("failed to create remote directory: %v", err)
			}
			return nil
		}
		return t.Upload(ctx, p, target, progress)
	})
}

// Download pobiera plik z serwera
func (t *SFTP) Download(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	srcFile, err := t.client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %v", err)
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}
	if fileInfo.IsDir() {
		return fmt.Errorf("%s is a directory", remotePath)
	}

	localPath = utils.LocalTarget(remotePath, localPath)
	dstFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %v", err)
	}
	defer dstFile.Close()

	p := Progress{
		FileName:   path.Base(remotePath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}
	if err := copyWithProgress(ctx, dstFile, srcFile, &p, progress); err != nil {
		return err
	}

	// Upewnij się, że dane zostały zapisane na lokalnym dysku
	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync local file: %v", err)
	}
	return nil
}

func (t *SFTP) Close() error {
	if err := t.client.Close(); err != nil {
		return fmt.Errorf("error closing SFTP client: %v", err)
	}
	return nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, p *Progress, progress ProgressFunc) error {
	buf := make([]byte, bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if err != nil && err != io.EOF {
			return fmt.Errorf("error reading file: %v", err)
		}

		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("error writing file: %v", writeErr)
			}
			if written != n {
				return fmt.Errorf("incomplete write: wrote %d bytes instead of %d", written, n)
			}

			p.TransferredBytes += int64(n)
			if progress != nil {
				progress(*p)
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}
