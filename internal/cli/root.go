// Package cli implements the csvsplit command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvsplit/internal/application"
	"github.com/JonMunkholm/csvsplit/internal/config"
	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/logging"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

// splitService is the part of core.Service the commands use.
type splitService interface {
	InspectPath(ctx context.Context, path string) (core.FileInfo, error)
	SplitNow(ctx context.Context, req core.SplitRequest, onProgress core.ProgressFunc) (*core.SplitResult, error)
}

// deps carries state shared by the commands. Tests pre-fill cfg and svc.
type deps struct {
	cfg     *config.Config
	svc     splitService
	closeFn func()

	envFile   string
	logLevel  string
	logFormat string
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	d := &deps{}
	defer d.close()

	root := newRootCmd(d)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(d *deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "csvsplit",
		Short: "Split large CSV files into smaller ones",
		Long: `csvsplit cuts a CSV file into parts of at most N data rows.
Every part repeats the header line and keeps the source encoding
(UTF-8, UTF-16 or GBK), which is detected automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return d.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&d.envFile, "env-file", "", "load environment variables from this file (default .env if present)")
	root.PersistentFlags().StringVar(&d.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&d.logFormat, "log-format", "", "log format: text or json (overrides LOG_FORMAT)")

	root.AddCommand(
		newSplitCmd(d),
		newInspectCmd(d),
		newWatchCmd(d),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, installs the logger and builds the service.
func (d *deps) setup(cmd *cobra.Command) error {
	if d.cfg == nil {
		if err := loadEnvFile(d.envFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		d.cfg = cfg
	}

	level, format := d.cfg.Logging.Level, d.cfg.Logging.Format
	if d.logLevel != "" {
		level = d.logLevel
	}
	if d.logFormat != "" {
		format = d.logFormat
	}
	// Logs go to stderr so results on stdout stay machine-readable.
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, format))

	if d.svc == nil {
		app, err := application.New(cmd.Context(), d.cfg)
		if err != nil {
			return err
		}
		d.svc = app.Service
		d.closeFn = app.Close
	}
	return nil
}

func (d *deps) close() {
	if d.closeFn != nil {
		d.closeFn()
	}
}

// loadEnvFile loads path, or .env when path is empty. A missing default
// file is not an error. Variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// userError renders err the way the web UI does: message, action, code.
func userError(err error) string {
	msg := core.MapError(err)
	return fmt.Sprintf("%s (%s). %s", msg.Message, msg.Code, msg.Action)
}
