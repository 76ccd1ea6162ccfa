package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/alicanerdogan/livemarkdown/internal/config"
	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/preview"
	"github.com/alicanerdogan/livemarkdown/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve [file.md...]",
	Aliases: []string{"s"},
	Short:   "Start the preview server",
	Long: `Start the preview server and register the given markdown files.
Every open page reloads when its file changes on disk and follows cursor
positions posted by the editor.

Examples:
  livemarkdown serve README.md
  livemarkdown serve -p 4100 --no-open docs/*.md`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "Port to serve on")
	serveCmd.Flags().String("host", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().Duration("debounce", config.DefaultDebounce, "Quiet period before a file change is announced")
	serveCmd.Flags().Bool("no-open", false, "Don't open browser automatically")

	bindFlags(serveCmd.Flags(), map[string]string{
		"server.port":    "port",
		"server.host":    "host",
		"watch.debounce": "debounce",
		"server.no-open": "no-open",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigurationError(err.Error(), viper.ConfigFileUsed()))
	}
	cfg.Files = args

	logger := newLogger(cfg, cmd.ErrOrStderr())

	svc, err := preview.New(preview.Options{
		Debounce:   cfg.Watch.Debounce,
		BufferSize: cfg.Events.BufferSize,
		KeepAlive:  cfg.Session.KeepAlive,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start preview service: %w", err)
	}

	srv := server.New(cfg, svc, server.Options{Logger: logger})

	out := cmd.OutOrStdout()
	for _, file := range cfg.Files {
		if _, err := os.Stat(file); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", file, err)
		}
		id := svc.Register(file)
		fmt.Fprintf(out, "%s -> http://%s/document/%s\n", file, cfg.Server.Addr(), id)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Starting livemarkdown server at http://%s\n", cfg.Server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return errors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				errors.ServerStartError(err, cfg.Server.Port),
			)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return svc.Close()
	})
	return g.Wait()
}
