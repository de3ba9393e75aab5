package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nonomal/termora-sub000/internal/logging"
	"github.com/nonomal/termora-sub000/internal/models"
	sshclient "github.com/nonomal/termora-sub000/internal/ssh"
	"github.com/nonomal/termora-sub000/internal/transfer"
	"github.com/nonomal/termora-sub000/internal/utils"
)

// runTransfer copies one file or directory over SFTP (or SCP) and exits.
func runTransfer(ctx context.Context, env *environment, host *models.Host, opts options) error {
	if host.Protocol != models.ProtocolSSH {
		return fmt.Errorf("file transfer needs an SSH host, %s is %s", host.Name, host.Protocol)
	}

	log := logging.Component(env.log, "transfer")
	client, err := sshclient.NewClient(host, sshclient.Options{
		Keys:           env.keys,
		Hosts:          env.manager,
		KnownHostsPath: env.settings.KnownHostsPath,
		ConnectTimeout: env.settings.ConnectTimeout,
		AuthTimeout:    env.settings.AuthTimeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	sess, err := client.OpenSession(ctx, func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	tr, err := transfer.Open(sess.Client(), log)
	if err != nil {
		return err
	}
	defer tr.Close()

	progress := progressPrinter()
	if opts.put != "" {
		err = tr.Upload(ctx, utils.ExpandHome(opts.put), opts.dest, progress)
	} else {
		dest := opts.dest
		if dest == "" {
			dest = env.settings.DownloadDir
		}
		if dest == "" {
			dest = "."
		}
		err = tr.Download(ctx, opts.get, utils.ExpandHome(dest), progress)
	}
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Transfer completed.")
	return nil
}

// progressPrinter rewrites one status line at most ten times a second.
func progressPrinter() transfer.ProgressFunc {
	var last time.Time
	return func(p transfer.Progress) {
		if time.Since(last) < 100*time.Millisecond && p.TransferredBytes < p.TotalBytes {
			return
		}
		last = time.Now()
		fmt.Fprintf(os.Stderr, "\r%s  %s / %s  %s/s",
			p.FileName, formatBytes(p.TransferredBytes), formatBytes(p.TotalBytes), formatBytes(rate(p)))
	}
}

func rate(p transfer.Progress) int64 {
	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(p.TransferredBytes) / elapsed)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
