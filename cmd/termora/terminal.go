package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/nonomal/termora-sub000/internal/connector"
	"github.com/nonomal/termora-sub000/internal/logging"
	"github.com/nonomal/termora-sub000/internal/macro"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/nonomal/termora-sub000/internal/session"
	"github.com/nonomal/termora-sub000/internal/terminal"
	"github.com/nonomal/termora-sub000/internal/transfer"
)

const reconnectHint = "Press Ctrl+] then r to reconnect or q to quit."

// maxMacroEntries caps a recording so a forgotten recorder cannot grow
// without bound.
const maxMacroEntries = 100000

func runTerminal(ctx context.Context, env *environment, host *models.Host, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("failed to set raw terminal: %v", err)
		}
		defer func() {
			if err := term.Restore(stdin, oldState); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to restore terminal state: %v\n", err)
			}
		}()
	}

	loop := terminal.NewLoop()
	go loop.Run(ctx)

	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		rows, cols = 24, 80
	}
	model := newConsole(os.Stdout, rows, cols)
	notify := func(msg string) {
		loop.Dispatch(func() { model.Write(terminal.InfoLine("\r\n" + msg)) })
	}

	recorder := macro.NewRecorder(maxMacroEntries)
	factory := connector.NewFactory(connector.NewRegistry(), recorder, logging.Component(env.log, "connector"))

	downloadDir := env.settings.DownloadDir
	if downloadDir != "" {
		if err := os.MkdirAll(downloadDir, 0755); err != nil {
			return fmt.Errorf("failed to create download directory: %v", err)
		}
	}
	zm := transfer.NewZModem(transfer.ZModemOptions{
		Dir:    downloadDir,
		Files:  func() []string { return opts.zmodemSend },
		Notify: notify,
		Logger: logging.Component(env.log, "zmodem"),
	})
	factory.AddTap(zm.Tap)

	quit := make(chan struct{})
	var quitOnce sync.Once
	stop := func() { quitOnce.Do(func() { close(quit) }) }

	sess, err := session.New(host, session.Deps{
		Model:         model,
		UI:            loop,
		Factory:       factory,
		Settings:      env.settings,
		Keys:          env.keys,
		Hosts:         env.manager,
		OnClose:       stop,
		ReconnectHint: reconnectHint,
		Logger:        logging.Component(env.log, "session"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Dispose(); err != nil {
			env.log.Warn().Err(err).Msg("dispose failed")
		}
	}()

	if opts.record != "" {
		recorder.Start()
		defer saveRecording(env, recorder, opts.record)
	}

	// Błąd startu jest już wypisany w terminalu; można ponowić przez Ctrl+] r
	if err := sess.Start(ctx); err == nil && opts.play != "" {
		go playMacro(ctx, env, recorder, sess, opts)
	}

	go watchResize(ctx, func() {
		w, h, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			return
		}
		loop.Dispatch(func() { model.Resize(h, w) })
		if err := sess.Resize(h, w); err != nil {
			env.log.Debug().Err(err).Msg("resize not forwarded")
		}
	})

	go pumpInput(ctx, env, sess, zm, recorder, notify, stop)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	return nil
}

// pumpInput forwards keyboard input to the live connector and runs local
// commands.
func pumpInput(ctx context.Context, env *environment, sess *session.Session, zm *transfer.ZModem, recorder *macro.Recorder, notify func(string), stop func()) {
	var filter inputFilter
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			env.log.Info().Err(err).Msg("stdin closed")
			stop()
			return
		}

		forward, commands := filter.Filter(buf[:n])
		if len(forward) > 0 {
			if conn := sess.Connector(); conn != nil {
				if _, err := conn.Write(forward); err != nil {
					env.log.Warn().Err(err).Msg("write to connector failed")
				}
			}
		}

		for _, c := range commands {
			switch c {
			case cmdReconnect:
				if !sess.CanReconnect() {
					continue
				}
				go func() {
					if err := sess.Reconnect(ctx); err != nil {
						env.log.Warn().Err(err).Msg("reconnect failed")
					}
				}()
			case cmdQuit:
				stop()
				return
			case cmdCancelZModem:
				zm.Cancel()
			case cmdRecord:
				if recorder.Recording() {
					entries := recorder.Stop()
					notify(fmt.Sprintf("Recording stopped (%d entries).", len(entries)))
				} else {
					recorder.Start()
					notify("Recording started.")
				}
			}
		}
	}
}

func playMacro(ctx context.Context, env *environment, recorder *macro.Recorder, sess *session.Session, opts options) {
	data, err := os.ReadFile(opts.play)
	if err != nil {
		env.log.Error().Err(err).Msg("failed to read macro")
		return
	}
	entries, err := macro.ParseJSON(data)
	if err != nil {
		env.log.Error().Err(err).Msg("failed to parse macro")
		return
	}
	conn := sess.Connector()
	if conn == nil {
		return
	}
	if err := recorder.Play(ctx, conn, entries, opts.playSpeed); err != nil {
		env.log.Warn().Err(err).Msg("macro playback stopped")
	}
}

func saveRecording(env *environment, recorder *macro.Recorder, path string) {
	recorder.Stop()
	data, err := recorder.ExportJSON()
	if err != nil {
		env.log.Error().Err(err).Msg("failed to export recording")
		return
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		env.log.Error().Err(err).Str("path", path).Msg("failed to save recording")
	}
}
