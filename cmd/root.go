// Package cmd defines and implements the CLI commands for the ehound executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/app"
	"github.com/JakeFAU/ehound/internal/config"
	"github.com/JakeFAU/ehound/internal/logging"
)

// appKey stores the App in the command context.
type appKey struct{}

// newApp is the application factory. It is a variable so tests can inject fakes.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts app.Options) (*app.App, error) {
	return app.New(ctx, cfg, logger, opts)
}

type rootOptions struct {
	cfgFile  string
	logLevel string
	progress bool

	// app is set once PersistentPreRunE succeeds and cleared when it is closed.
	app *app.App
}

// shutdown closes the App if the command did not get to PersistentPostRunE.
func (o *rootOptions) shutdown(ctx context.Context) error {
	if o.app == nil {
		return nil
	}
	a := o.app
	o.app = nil
	err := a.Close(context.WithoutCancel(ctx))
	_ = logging.Sync(a.Logger())
	return err
}

// newRootCmd creates and configures the root command.
func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ehound",
		Short: "Archive serialized web content (manga, webtoons, web novels) chapter by chapter.",
		Long: `ehound follows a book's "next" links from a starting chapter, saves every
chapter's images or text into a local cache (or GCS), and keeps the library, header
groups and per-domain headers in JSON state files between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the App once per invocation and restores any saved state.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level := cfg.Logging.Level
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			logger, err := logging.NewAtLevel(cfg.Logging.Development, level)
			if err != nil {
				return err
			}
			var bars io.Writer
			if opts.progress {
				bars = cmd.ErrOrStderr()
			}
			a, err := newApp(cmd.Context(), cfg, logger, app.Options{Bars: bars})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := a.Restore(); err != nil {
				_ = a.Close(cmd.Context())
				return fmt.Errorf("restore state: %w", err)
			}
			opts.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.shutdown(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML); EHOUND_* environment variables override it")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.progress, "progress", false, "render progress bars on stderr")

	cmd.AddCommand(
		newAddCmd(),
		newRefreshCmd(),
		newSaveCmd(),
		newLoadCmd(),
		newHeadersCmd(),
		newLibraryCmd(),
		newExportCmd(),
		newCatalogCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(cmd *cobra.Command) (*app.App, error) {
	a, ok := cmd.Context().Value(appKey{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services are not initialized")
	}
	return a, nil
}

// run executes the CLI with args. Output goes to stdout; bars, usage and errors go to
// stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if closeErr := opts.shutdown(ctx); err == nil {
		err = closeErr
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
