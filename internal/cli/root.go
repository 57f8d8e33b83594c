// Package cli provides the command-line interface for mixtape.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mixtape/mixtape/internal/config"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/version"
)

// EnvPrefix prefixes every environment override, e.g. MIXTAPE_RESOLVER_URL.
const EnvPrefix = "MIXTAPE"

var (
	// Global flags
	cfgFile string
	verbose bool
	debug   bool
	quiet   bool
	plain   bool

	// settings overlays flags and MIXTAPE_* variables on the config file
	settings *viper.Viper

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Keys that may be overridden from flags or the environment.
const (
	keyResolverURL = "resolver-url"
	keySandboxRoot = "sandbox-root"
	keyScratchDir  = "scratch-dir"
	keyStateDir    = "state-dir"
	keyLogLevel    = "log-level"
	keyNoNotify    = "no-notify"
	keyConfig      = "config"
	// environment only
	keyProxyPassword = "proxy-password"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	settings = viper.New()
	settings.SetEnvPrefix(EnvPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "mixtape",
		Short: "MixTape - resumable audio downloads",
		Long: `MixTape ` + version.Version + ` - Built: ` + version.BuildTime + `
Resolve a media link to its audio stream and download it, resumably, into the
app's private download folder or a location you have granted access to.

Examples:
  mixtape get https://youtu.be/dQw4w9WgXcQ
  mixtape resume
  mixtape list
  mixtape destination grant dir ~/Music

Settings come from the config file, MIXTAPE_* environment variables and flags
(flags win).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, keyConfig, "c", "", "Configuration file path")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	flags.BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "No progress display")
	flags.BoolVar(&plain, "plain", false, "Single-line progress bar instead of the full display")
	flags.String(keyResolverURL, "", "Resolver proxy base URL (overrides config)")
	flags.String(keySandboxRoot, "", "Private download folder (overrides config)")
	flags.String(keyScratchDir, "", "Scratch folder for granted destinations (overrides config)")
	flags.String(keyStateDir, "", "Folder holding resume and destination state (overrides config)")
	flags.String(keyLogLevel, "", "Log level: debug, info, warn, error (overrides config)")
	flags.Bool(keyNoNotify, false, "Disable desktop notifications")

	for _, key := range []string{keyConfig, keyResolverURL, keySandboxRoot, keyScratchDir, keyStateDir, keyLogLevel, keyNoNotify} {
		_ = settings.BindPFlag(key, flags.Lookup(key))
	}

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				// A running download treats this as pause and saves its state
				fmt.Fprintf(os.Stderr, "\nReceived %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	// Clean up signal handler
	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDestinationCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// configPath returns the config file in effect.
func configPath() string {
	if settings != nil {
		if p := settings.GetString(keyConfig); p != "" {
			return p
		}
	}
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file and applies flag and environment
// overrides. Priority: flags > environment > config file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !verbose && !debug {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if settings == nil {
		return
	}
	if s := settings.GetString(keyResolverURL); s != "" {
		cfg.Resolver.BaseURL = s
	}
	if s := settings.GetString(keySandboxRoot); s != "" {
		cfg.Storage.SandboxRoot = s
	}
	if s := settings.GetString(keyScratchDir); s != "" {
		cfg.Storage.ScratchDir = s
	}
	if s := settings.GetString(keyStateDir); s != "" {
		cfg.Storage.StateDir = s
	}
	if s := settings.GetString(keyLogLevel); s != "" {
		cfg.Log.Level = s
	}
	if s := settings.GetString(keyProxyPassword); s != "" {
		cfg.Network.ProxyPassword = s
	}
	if settings.GetBool(keyNoNotify) {
		cfg.Notifications.Enabled = false
	}
}
