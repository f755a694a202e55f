package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/config"
)

func newInitCmd(_ *rootOptions) *cobra.Command {
	var (
		local bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a default config file",
		Long: `Write a commented default config file.

Without PATH the file goes to ~/.config/algomgr/config.yaml, or to
./.algomgr/config.yaml with --local.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			switch {
			case len(args) == 1:
				path = args[0]
			case local:
				path = filepath.Join(".algomgr", "config.yaml")
			}
			if path == "" {
				return fmt.Errorf("cannot determine a config path; pass one explicitly")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "write ./.algomgr/config.yaml")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
