package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pagechat/internal/history"
	"pagechat/internal/kv"
	"pagechat/internal/logging"
	"pagechat/internal/session"
	"pagechat/internal/settings"
)

var (
	dataDir   string
	backend   string
	logLevel  string
	quotaMB   int
	endpoint  string
	model     string
	timeoutMS int
)

// app carries the wired stores for the lifetime of one command invocation.
type app struct {
	log      zerolog.Logger
	dir      string
	store    kv.Store
	settings *settings.Store
	history  *history.Store
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close storage")
		}
	}
}

func (a *app) engine() *session.Engine {
	return session.New(session.Options{
		Settings:  a.settings,
		History:   a.history,
		Logger:    a.log,
		Endpoint:  endpoint,
		Model:     model,
		TimeoutMS: timeoutMS,
	})
}

func newApp() (*app, error) {
	log := logging.New(logging.Config{
		Level:  logLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	dir := dataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".pagechat")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	maxBytes := int64(quotaMB) << 20
	var store kv.Store
	var err error
	switch backend {
	case "sqlite":
		store, err = kv.NewSQLiteStore(filepath.Join(dir, "pagechat.db"), maxBytes)
	case "file":
		store, err = kv.NewFileStore(filepath.Join(dir, "store"), maxBytes)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite or file)", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &app{
		log:      log,
		dir:      dir,
		store:    store,
		settings: settings.NewStore(store, log),
		history:  history.NewStore(store, log),
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "pagechat",
	Short: "Chat with Gemini about web page content",
	Long: `pagechat holds conversations with a Gemini model, optionally grounded
in the content of a web page. Conversations are saved locally and can be
resumed, searched, exported and imported.

Running pagechat with no subcommand starts the interactive chat loop.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

// Execute runs the root command, printing errors the cobra way.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.pagechat)")
	flags.StringVar(&backend, "backend", "sqlite", "Storage backend: sqlite or file")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.IntVar(&quotaMB, "quota-mb", 5, "Storage quota in MiB")
	flags.StringVar(&endpoint, "endpoint", "", "Gemini API endpoint override")
	flags.StringVar(&model, "model", "", "Gemini model override")
	flags.IntVar(&timeoutMS, "timeout-ms", 0, "Request timeout in milliseconds (0 = default)")
}
