package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calmate/internal/chat"
	"calmate/internal/config"
	"calmate/internal/llm"
	appLog "calmate/internal/log"
	"calmate/internal/session"
	"calmate/internal/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// app carries state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config

	// newGenerator builds the model client; tests replace it.
	newGenerator func(ctx context.Context, cfg *config.Config) (chat.Generator, error)
}

func newApp() *app {
	return &app{
		newGenerator: func(ctx context.Context, cfg *config.Config) (chat.Generator, error) {
			return llm.NewGemini(ctx, cfg.Gemini)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "calmate",
		Short:         "calmate - a personal scheduling assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	root.AddCommand(
		newChatCmd(a),
		newServeCmd(a),
		newEventsCmd(a),
		newProfileCmd(a),
		newExportICSCmd(a),
		newImportICSCmd(a),
		newSnapshotCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the config file, creating it on first run, and applies the
// log level.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		if cfg == nil {
			return fmt.Errorf("load config: %w", err)
		}
		appLog.Warn("could not write default config", "path", a.configPath, "err", err)
	}
	a.cfg = cfg

	name := cfg.LogLevel
	if a.logLevel != "" {
		name = a.logLevel
	}
	lvl, err := appLog.ParseLevel(name)
	if err != nil {
		return err
	}
	appLog.SetLevel(lvl)

	appLog.Debug("effective config",
		"config_path", a.configPath,
		"data_dir", cfg.DataDir,
		"timezone", cfg.Location().String(),
		"model", cfg.Gemini.Model,
		"listen", cfg.Listen,
		"ics_count", len(cfg.ICS),
	)
	return nil
}

func (a *app) store() *store.Store {
	return store.FromConfig(a.cfg)
}

func (a *app) session() *session.Session {
	return session.New(a.store(), session.OptionsFromConfig(a.cfg))
}

// chat wires a fresh session to the configured model.
func (a *app) chat(ctx context.Context) (*chat.Chat, error) {
	gen, err := a.newGenerator(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return chat.New(a.session(), gen), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the calmate version",
		// The version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "calmate", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(newApp()).ExecuteContext(ctx)
	appLog.Sync()
	if err != nil {
		appLog.Error("calmate failed", err)
		os.Exit(1)
	}
}
