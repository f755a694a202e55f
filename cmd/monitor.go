package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/app"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/monitor"
)

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch the retention pool in the terminal",
		Long: `Open a live view of the retained handles.

Keys: r starts a demo batch of built-in algorithms, c clears the pool,
q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.debug {
				cleanup, err := log.InitWithTeaLog("debug.log", "algomgr")
				if err != nil {
					return err
				}
				defer cleanup()
			}
			return opts.withApp(cmd, func(a *app.App) error {
				return monitor.Run(cmd.Context(), a.Manager)
			})
		},
	}
}
