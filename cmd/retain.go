package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/config"
)

func newRetainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retain N",
		Short: "Set the retention pool capacity in the config file",
		Long: `Set algorithms.retained in the config file in use, keeping its comments.
A running 'algomgr serve' picks the change up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", config.ErrInvalidCapacity, args[0])
			}
			_, path, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				path = opts.cfgFile
			}
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if err := config.SaveRetained(path, n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s algorithms.retained = %d in %s\n", okStyle.Render("set"), n, path)
			return nil
		},
	}
}
