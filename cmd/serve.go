package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/api"
	"github.com/zjrosen/algomgr/internal/app"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP control surface until interrupted.

Edits to algorithms.retained in the config file are applied without a
restart unless --no-watch is given.

Examples:
  algomgr serve
  algomgr serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, used, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Addr = addr
			}
			if !opts.debug {
				defer log.InitWriter(cmd.ErrOrStderr(), log.ParseLevel(cfg.Log.Level))()
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if used != "" && !noWatch {
				stopWatch, err := watchCapacity(ctx, used, a)
				if err != nil {
					return err
				}
				defer stopWatch()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s on %s (retaining %d)\n",
				headerStyle.Render("algomgr serving"), cfg.API.Addr, cfg.Algorithms.Retained)
			srv := api.NewServer(api.Config{Addr: cfg.API.Addr, CORSOrigins: cfg.API.CORSOrigins}, a.Manager, a.History())
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides api.addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not follow config file edits")
	return cmd
}

// watchCapacity applies algorithms.retained edits in path to the manager.
func watchCapacity(ctx context.Context, path string, a *app.App) (func(), error) {
	w, err := watcher.New(watcher.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	changes, err := w.Start()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	go watcher.FollowCapacity(ctx, changes, path, a.Manager)
	log.Info(log.CatWatcher, "Following config edits", "path", path, "key", "algorithms.retained")
	return func() { _ = w.Stop() }, nil
}

