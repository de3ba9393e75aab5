// internal/transfer/scp.go

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/nonomal/termora-sub000/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SCP jest zapasową ścieżką dla serwerów bez podsystemu sftp
type SCP struct {
	client scp.Client
}

func NewSCP(conn *ssh.Client) (*SCP, error) {
	client, err := scp.NewClientBySSH(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCP client: %v", err)
	}
	return &SCP{client: client}, nil
}

func (t *SCP) Upload(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer localFile.Close()

	fileInfo, err := localFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}
	if fileInfo.IsDir() {
		return fmt.Errorf("scp does not support directory upload: %s", localPath)
	}

	p := &Progress{
		FileName:   filepath.Base(localPath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}
	reader := &ProgressReader{Reader: localFile, Progress: p, Notify: progress}

	perm := fmt.Sprintf("%04o", fileInfo.Mode().Perm())
	if err := t.client.Copy(ctx, reader, utils.RemoteTarget(localPath, remotePath), perm, fileInfo.Size()); err != nil {
		return fmt.Errorf("failed to copy file data: %v", err)
	}
	return nil
}

func (t *SCP) Download(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	localFile, err := os.Create(utils.LocalTarget(remotePath, localPath))
	if err != nil {
		return fmt.Errorf("failed to create local file: %v", err)
	}
	defer localFile.Close()

	p := &Progress{
		FileName:  path.Base(remotePath),
		StartTime: time.Now(),
	}
	passThru := func(r io.Reader, total int64) io.Reader {
		p.TotalBytes = total
		return &ProgressReader{Reader: r, Progress: p, Notify: progress}
	}
	if err := t.client.CopyFromRemotePassThru(ctx, localFile, remotePath, passThru); err != nil {
		return fmt.Errorf("failed to copy file data: %v", err)
	}
	return nil
}

// Close nic nie robi; każda kopia otwiera własny kanał na połączeniu,
// którym zarządza sesja
func (t *SCP) Close() error {
	return nil
}

// ProgressReader to wrapper do śledzenia postępu transferu
type ProgressReader struct {
	io.Reader
	Progress *Progress
	Notify   ProgressFunc
}

// Read implementuje interfejs io.Reader i aktualizuje postęp
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.Progress.TransferredBytes += int64(n)
		if pr.Notify != nil {
			pr.Notify(*pr.Progress)
		}
	}
	return n, err
}

// Open wybiera SFTP, a gdy serwer go nie obsługuje, SCP
func Open(conn *ssh.Client, log zerolog.Logger) (Transfer, error) {
	sftpTransfer, err := NewSFTP(conn)
	if err == nil {
		return sftpTransfer, nil
	}
	log.Info().Err(err).Msg("sftp unavailable, falling back to scp")

	scpTransfer, scpErr := NewSCP(conn)
	if scpErr != nil {
		return nil, fmt.Errorf("no file transfer available: %v; %v", err, scpErr)
	}
	return scpTransfer, nil
}
