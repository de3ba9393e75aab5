//go:build windows

package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/term"
)

// Windows nie ma SIGWINCH, więc rozmiar konsoli jest odpytywany
func watchResize(ctx context.Context, onResize func()) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastW, lastH, _ := term.GetSize(int(os.Stdout.Fd()))
	for {
		select {
		case <-ticker.C:
			w, h, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil || (w == lastW && h == lastH) {
				continue
			}
			lastW, lastH = w, h
			onResize()
		case <-ctx.Done():
			return
		}
	}
}
