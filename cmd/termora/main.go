// termora opens a terminal session to a host from the hosts file: an SSH
// server, a local shell or a serial line. Without --host it shows a picker.
//
// While a session runs, Ctrl+] followed by a key runs a local command:
// r reconnects, q quits, z cancels a ZMODEM transfer and m starts or stops
// macro recording.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nonomal/termora-sub000/internal/config"
	"github.com/nonomal/termora-sub000/internal/crypto"
	"github.com/nonomal/termora-sub000/internal/keys"
	"github.com/nonomal/termora-sub000/internal/logging"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/nonomal/termora-sub000/internal/serial"
	"github.com/nonomal/termora-sub000/internal/ui"
)

type options struct {
	configPath string
	hostRef    string
	local      bool
	serialPort string
	baudRate   int
	listPorts  bool
	logLevel   string

	put  string
	get  string
	dest string

	record     string
	play       string
	playSpeed  float64
	zmodemSend []string
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("termora", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "hosts file (JSON or YAML)")
	flagSet.StringVarP(&opts.hostRef, "host", "H", "", "host id or name (skips the picker)")
	flagSet.BoolVar(&opts.local, "local", false, "open a local shell")
	flagSet.StringVar(&opts.serialPort, "serial", "", "open a serial port, e.g. /dev/ttyUSB0")
	flagSet.IntVar(&opts.baudRate, "baud", 9600, "baud rate for --serial")
	flagSet.BoolVar(&opts.listPorts, "list-ports", false, "list serial ports and exit")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level (overrides TERMORA_LOG_LEVEL)")
	flagSet.StringVar(&opts.put, "put", "", "upload a local file or directory and exit")
	flagSet.StringVar(&opts.get, "get", "", "download a remote file and exit")
	flagSet.StringVar(&opts.dest, "dest", "", "target path for --put or --get")
	flagSet.StringVar(&opts.record, "record", "", "record the session as a macro into this file")
	flagSet.StringVar(&opts.play, "play", "", "play a recorded macro into the session")
	flagSet.Float64Var(&opts.playSpeed, "speed", 1, "macro playback speed, 0 plays without delays")
	flagSet.StringSliceVar(&opts.zmodemSend, "zmodem-send", nil, "files offered when the remote side runs rz")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if opts.listPorts {
		ports, err := serial.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if opts.configPath != "" {
		settings.HostsPath = opts.configPath
	}
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
	}

	logger, closer, err := logging.New(settings.LogPath, settings.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	manager := config.NewManager(settings.HostsPath)
	if err := manager.Load(); err != nil {
		return err
	}

	store, err := keyStore(manager, settings)
	if err != nil {
		return err
	}

	host, err := selectHost(manager, opts)
	if err != nil {
		return err
	}
	logger.Info().Str("host", host.Name).Str("protocol", string(host.Protocol)).Msg("host selected")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env := &environment{
		settings: settings,
		manager:  manager,
		keys:     store,
		log:      logger,
	}

	if opts.put != "" || opts.get != "" {
		return runTransfer(ctx, env, host, opts)
	}
	return runTerminal(ctx, env, host, opts)
}

// environment bundles what every mode needs.
type environment struct {
	settings config.Settings
	manager  *config.Manager
	keys     *keys.Store
	log      zerolog.Logger
}

func selectHost(manager *config.Manager, opts options) (*models.Host, error) {
	switch {
	case opts.local:
		return &models.Host{ID: "local", Name: "Local shell", Protocol: models.ProtocolLocal}, nil
	case opts.serialPort != "":
		return &models.Host{
			ID:       "serial",
			Name:     opts.serialPort,
			Protocol: models.ProtocolSerial,
			Options: models.Options{SerialComm: models.SerialComm{
				Port:     opts.serialPort,
				BaudRate: opts.baudRate,
			}},
		}, nil
	case opts.hostRef != "":
		host, err := manager.FindHost(opts.hostRef)
		if err != nil {
			return nil, err
		}
		return &host, nil
	}
	return ui.Pick(manager.GetHosts())
}

// keyStore asks for the master password only when the hosts file stores
// secrets that need it, and decrypts host passwords in place.
func keyStore(manager *config.Manager, settings config.Settings) (*keys.Store, error) {
	var cipher *crypto.Cipher
	if manager.NeedsCipher() {
		password := settings.MasterPassword
		if password == "" {
			var err error
			password, err = ui.PromptSecret("Master password", "Using hosts file: "+manager.Path())
			if err != nil {
				return nil, err
			}
		}
		cipher = crypto.NewCipher(password)
		if err := manager.DecryptSecrets(cipher); err != nil {
			return nil, err
		}
	}
	return keys.NewStore(manager.GetKeys(), cipher), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: termora [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Opens a terminal session to a configured host.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nWhile connected, press Ctrl+] and then r (reconnect), q (quit), z (cancel ZMODEM) or m (toggle recording).\n")
}
