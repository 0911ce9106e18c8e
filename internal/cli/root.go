package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/casesweep/internal/logger"
	"github.com/ppiankov/casesweep/internal/model"
)

// Version is overridden at build time with -ldflags
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "casesweep",
	Short: "Sweep Wisconsin circuit court filings by date range and case class",
	Long: `casesweep queries the Wisconsin Circuit Court Access (WCCA) advanced search
over a date range, one class code at a time, in fixed-size filing-date windows.

Cases returned by several windows or class codes are merged into one record
that lists every class code it matched. Case details and parties can then be
read from the portal's case pages in a local browser.

Only public search pages are used. Respect the portal's terms of use.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "casesweep %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.casesweep/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error, off)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("db", "", "SQLite database for sweeps and details (optional)")

	_ = viper.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("store.path", flags.Lookup("db"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := model.BindDefaults(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(model.ConfigDir())
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// CASESWEEP_HTTP_BASE_URL overrides http.base_url, and so on
	viper.SetEnvPrefix("CASESWEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig binds the command's own flags to config keys, resolves the
// layered configuration and initialises logging from it. Binding happens
// here rather than in init so commands sharing a key don't steal each
// other's flags.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*model.Config, error) {
	for key, name := range bindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	cfg, err := model.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if verbose && !changed(cmd, "log-level") && viper.GetString("log.level") == "info" {
		cfg.Log.Level = "debug"
	}
	if cfg.Store.Path != "" {
		cfg.Store.Path = expandHome(cfg.Store.Path)
	}
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.Detail.Profile = expandHome(cfg.Detail.Profile)

	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Named("cli").Debug().
		Str("command", cmd.Name()).
		Str("config_file", viper.ConfigFileUsed()).
		Str("base_url", cfg.HTTP.BaseURL).
		Msg("configuration loaded")
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.InheritedFlags().Lookup(name)
	}
	return f != nil && f.Changed
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
