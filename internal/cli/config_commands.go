// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mixtape/mixtape/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mixtape configuration",
		Long: `Configuration management commands for mixtape.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for mixtape.

The configuration is saved to ` + config.DefaultConfigPath() + `
unless --config is given. Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()
			path := configPath()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "MixTape Configuration Setup")
			fmt.Fprintln(out, "===========================")
			fmt.Fprintln(out)

			p := newPrompter(cmd.InOrStdin(), out, false)
			ask := func(label, def string) (string, error) {
				fmt.Fprintf(out, "%s [%s]: ", label, def)
				input, err := p.readLine()
				if err != nil || input == "" {
					return def, err
				}
				return input, nil
			}

			cfg := config.NewConfig()
			var err error
			if cfg.Resolver.BaseURL, err = ask("Resolver URL", cfg.Resolver.BaseURL); err != nil {
				return err
			}
			if cfg.Storage.SandboxRoot, err = ask("Download folder", cfg.Storage.SandboxRoot); err != nil {
				return err
			}

			fmt.Fprintln(out)
			useProxy, err := p.confirm("Configure proxy?")
			if err != nil {
				return err
			}
			if useProxy {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Proxy Configuration")
				fmt.Fprintln(out, "-------------------")
				fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
				if cfg.Network.ProxyMode, err = ask("Proxy mode", "system"); err != nil {
					return err
				}
				mode := strings.ToLower(cfg.Network.ProxyMode)
				if mode == "basic" || mode == "ntlm" {
					if cfg.Network.ProxyHost, err = ask("Proxy host", ""); err != nil {
						return err
					}
					port, err := ask("Proxy port", strconv.Itoa(cfg.Network.ProxyPort))
					if err != nil {
						return err
					}
					if v, err := strconv.Atoi(port); err == nil && v > 0 {
						cfg.Network.ProxyPort = v
					}
					if cfg.Network.ProxyUser, err = ask("Proxy user", ""); err != nil {
						return err
					}
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			logger.Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			if cfg.Network.ProxyUser != "" {
				fmt.Fprintln(out, "The proxy password is not stored. Set MIXTAPE_PROXY_PASSWORD when needed.")
			}
			fmt.Fprintln(out, "Check the resolver with: mixtape resolve --ping")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file
  2. Environment variables (MIXTAPE_RESOLVER_URL, MIXTAPE_SANDBOX_ROOT, ...)
  3. Command-line flags (--resolver-url, --sandbox-root, ...)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyOverrides(cfg)

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Resolver:")
			fmt.Fprintf(out, "  Base URL:    %s\n", cfg.Resolver.BaseURL)
			fmt.Fprintf(out, "  Timeout:     %s\n", cfg.Resolver.Timeout)
			fmt.Fprintf(out, "  Rate limit:  %d/min (burst %d)\n", cfg.Resolver.RatePerMinute, cfg.Resolver.Burst)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Storage:")
			fmt.Fprintf(out, "  Downloads:   %s\n", cfg.Storage.SandboxRoot)
			fmt.Fprintf(out, "  Scratch:     %s\n", cfg.Storage.ScratchDir)
			fmt.Fprintf(out, "  State:       %s\n", cfg.Storage.StateDir)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Transfer:")
			fmt.Fprintf(out, "  Save every:  %d bytes\n", cfg.Transfer.PersistIntervalBytes)
			fmt.Fprintf(out, "  Max retries: %d\n", cfg.Transfer.MaxRetries)
			fmt.Fprintf(out, "  Disk check:  %t\n", cfg.Transfer.CheckDiskSpace)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Proxy Settings:")
			fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.Network.ProxyMode)
			if cfg.Network.ProxyHost != "" {
				fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.Network.ProxyHost)
				fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.Network.ProxyPort)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Notifications: %t\n", cfg.Notifications.Enabled)
			fmt.Fprintf(out, "Log level:     %s\n", cfg.Log.Level)

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\n⚠️  %v\n", err)
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "(file does not exist, defaults are in use)")
			}
			return nil
		},
	}
}
