//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchResize calls onResize on every SIGWINCH until ctx ends.
func watchResize(ctx context.Context, onResize func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			onResize()
		case <-ctx.Done():
			return
		}
	}
}
