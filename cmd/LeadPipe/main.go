// Command LeadPipe runs the WhatsApp lead-qualification service and its
// operator tooling (outreach campaigns, contact import, flow validation).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("LeadPipe failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags default to the environment so a
// flag always wins over an env var or .env entry.
func newRootCmd() *cobra.Command {
	cfg := loadConfig()

	root := &cobra.Command{
		Use:           "LeadPipe",
		Short:         "WhatsApp lead qualification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for LeadPipe state (SQLite database, lock files, conversation files)")
	pf.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL or SQLite DSN for contacts and conversations")
	pf.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for shared conversation state")
	pf.StringVar(&cfg.ProductKey, "product", cfg.ProductKey, "product key selecting <dialogue-dir>/<product>.flow.json")
	pf.StringVar(&cfg.DialogueDir, "dialogue-dir", cfg.DialogueDir, "directory holding flow documents")
	pf.StringVar(&cfg.DialogueFile, "dialogue-file", cfg.DialogueFile, "explicit flow document path")
	pf.StringVar(&cfg.Transport, "transport", cfg.Transport, "WhatsApp transport: twilio or whatsmeow")
	pf.StringVar(&cfg.CountryCode, "country-code", cfg.CountryCode, "country code for numbers without one")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")

	root.AddCommand(
		newServeCmd(&cfg),
		newOutreachCmd(&cfg),
		newImportContactsCmd(&cfg),
		newValidateCmd(&cfg),
	)
	return root
}

// initializeLogger installs the default slog logger.
func initializeLogger(w io.Writer, levelName, format string) error {
	level, err := parseLogLevel(levelName)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// ensureStateDir creates the state directory if it does not exist.
func ensureStateDir(cfg *Config) error {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", cfg.StateDir, err)
	}
	return nil
}
