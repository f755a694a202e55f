package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/algomgr/internal/app"
	"github.com/zjrosen/algomgr/internal/config"
	"github.com/zjrosen/algomgr/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 reply cannot race the monitor's input loop.
	_ = lipgloss.HasDarkBackground()
}

var version = "dev"

// rootOptions are the persistent flags every subcommand sees.
type rootOptions struct {
	cfgFile  string
	debug    bool
	retained int
	noColor  bool

	v *viper.Viper
}

// loadConfig reads the config file and environment, then applies flag
// overrides. It does not validate.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	o.v = config.NewViper()
	if f := cmd.Flags().Lookup("retained"); f != nil && f.Changed {
		o.v.Set("algorithms.retained", o.retained)
	}
	return config.Load(o.v, o.cfgFile)
}

// withApp builds the services, runs fn and tears them down.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, _, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			log.ErrorErr(log.CatManager, "Shutdown failed", cerr)
		}
	}()
	return fn(a)
}

// initLogging turns on the debug log when --debug or ALGOMGR_DEBUG is set.
func (o *rootOptions) initLogging() (func(), error) {
	if !o.debug && os.Getenv(config.EnvPrefix+"_DEBUG") == "" {
		return func() {}, nil
	}
	path := os.Getenv(config.EnvPrefix + "_LOG")
	if path == "" {
		path = "debug.log"
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.Info(log.CatConfig, "algomgr starting", "version", version, "debug", true, "logPath", path)
	return cleanup, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var cleanup func()

	root := &cobra.Command{
		Use:   "algomgr",
		Short: "Create, run and retain versioned algorithms",
		Long: `algomgr manages a catalog of named, versioned algorithms.

Handles are created by name and version, configured through properties and
executed synchronously or in the background. A bounded pool keeps the most
recent handles; running handles are never evicted.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.noColor || os.Getenv("NO_COLOR") != "" {
				lipgloss.SetColorProfile(termenv.Ascii)
			}
			if cmd.Name() == "monitor" {
				return nil
			}
			var err error
			cleanup, err = opts.initLogging()
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if cleanup != nil {
				cleanup()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "",
		"config file (default: ./.algomgr/config.yaml or ~/.config/algomgr/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "write a debug log")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().IntVar(&opts.retained, "retained", 0, "retention pool capacity (overrides config)")

	root.AddCommand(
		newListCmd(opts),
		newDescribeCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
		newMonitorCmd(opts),
		newHistoryCmd(opts),
		newInitCmd(opts),
		newRetainCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), errorStyle.Render("Error: "+err.Error()))
		return err
	}
	return nil
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
}
