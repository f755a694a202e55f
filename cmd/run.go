package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/app"
	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/manager"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		version int
		sets    []string
		async   bool
		direct  bool
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Create a handle and execute it",
		Long: `Create a handle for NAME, apply --set properties and execute it.

Examples:
  algomgr run Sum --set values=1,2,3
  algomgr run Echo --version 1 --set message=hi
  algomgr run Sleep --set duration=2s --async`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSets(sets)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(cmd, func(a *app.App) error {
				return runHandle(ctx, cmd.OutOrStdout(), a.Manager, runRequest{
					name:    args[0],
					version: version,
					values:  values,
					async:   async,
					direct:  direct,
					quiet:   quiet,
				})
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", catalog.LatestVersion, "algorithm version (default: latest)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "property assignment NAME=VALUE (repeatable)")
	cmd.Flags().BoolVar(&async, "async", false, "execute in the background and wait for the result")
	cmd.Flags().BoolVar(&direct, "direct", false, "use a direct handle instead of a proxy")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the outcome")
	return cmd
}

type runRequest struct {
	name    string
	version int
	values  map[string]string
	async   bool
	direct  bool
	quiet   bool
}

func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want NAME=VALUE", s)
		}
		out[k] = v
	}
	return out, nil
}

func runHandle(ctx context.Context, out io.Writer, mgr *manager.Manager, req runRequest) error {
	h, err := mgr.Create(req.name, req.version, manager.WithProxy(!req.direct), manager.WithProperties(req.values))
	if err != nil {
		return err
	}

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	if !req.quiet {
		h.AddObserver(algorithm.NewObserver(func(n algorithm.Notification) {
			switch n.Kind {
			case algorithm.NotifyProgress:
				if n.Message != "" {
					printf("%s %3.0f%%  %s\n", subtleStyle.Render("progress"), n.Progress*100, n.Message)
				}
			case algorithm.NotifyError:
				printf("%s %v\n", errorStyle.Render("error"), n.Err)
			}
		}))
	}

	printf("%s %s v%d (handle %d, %s)\n", headerStyle.Render("running"), h.Name(), h.Version(), h.ID(), h.Kind())

	var ok bool
	if req.async {
		res := h.ExecuteAsync(ctx)
		select {
		case <-res.Done():
		case <-ctx.Done():
			h.Cancel()
			<-res.Done()
		}
		ok, err = res.Wait(), res.Err()
	} else {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				h.Cancel()
			case <-done:
			}
		}()
		ok, err = h.Execute(ctx)
		close(done)
	}

	if err != nil {
		printf("%s %s (run %s)\n", errorStyle.Render("failed"), h.State(), h.LastRunID())
		return err
	}
	if !ok {
		printf("%s not executed (run %s)\n", errorStyle.Render("cancelled"), h.LastRunID())
		return fmt.Errorf("%s v%d did not execute", h.Name(), h.Version())
	}
	printf("%s %s (run %s)\n", okStyle.Render("done"), h.State(), h.LastRunID())
	return nil
}
