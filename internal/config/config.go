// Package config provides configuration management for mixtape.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/mixtape/mixtape/internal/constants"
)

// Config is the full application configuration.
//
// INI format:
//
//	[resolver]
//	base_url = http://localhost:3000
//	timeout = 60s
//	rate_per_minute = 10
//	burst = 3
//
//	[storage]
//	sandbox_root = ~/.local/share/MixTape/downloads
//	scratch_dir = ~/.cache/mixtape/scratch
//	state_dir = ~/.local/state/mixtape
//
//	[transfer]
//	persist_interval_bytes = 1048576
//	max_retries = 5
//	check_disk_space = true
//
//	[network]
//	proxy_mode = no-proxy
//	proxy_host =
//	proxy_port = 8080
//	no_proxy =
//
//	[notifications]
//	enabled = true
//	show_download_complete = true
//	show_download_failed = true
//
//	[log]
//	level = info
//	format = cli
type Config struct {
	Resolver      ResolverConfig
	Storage       StorageConfig
	Transfer      TransferConfig
	Network       NetworkConfig
	Notifications NotificationConfig
	Log           LogConfig
}

// ResolverConfig describes how to reach the descriptor resolution proxy.
type ResolverConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	Burst         int
}

// StorageConfig holds local directories.
type StorageConfig struct {
	// SandboxRoot is the app-private download root.
	SandboxRoot string
	// ScratchDir holds complete copies of files on their way to an external grant.
	ScratchDir string
	// StateDir holds the resume record, destination selection and grants.
	StateDir string
}

// TransferConfig tunes the transfer loop.
type TransferConfig struct {
	PersistIntervalBytes int64
	MaxRetries           int
	CheckDiskSpace       bool
}

// NetworkConfig holds proxy settings shared by every outbound client.
type NetworkConfig struct {
	// ProxyMode is one of no-proxy, system, basic, ntlm
	ProxyMode     string
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never written back to disk
	NoProxy       string
	ProxyWarmup   bool
	DisableHTTP2  bool
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	// Enabled indicates whether notifications are shown.
	Enabled bool

	// ShowDownloadComplete shows a notification when a download completes.
	ShowDownloadComplete bool

	// ShowDownloadFailed shows a notification when a download fails.
	ShowDownloadFailed bool
}

// LogConfig controls log verbosity and format.
type LogConfig struct {
	Level  string
	Format string // cli or json
}

// Validation errors
var (
	ErrMissingResolverURL   = errors.New("resolver base_url is required")
	ErrInvalidResolverURL   = errors.New("resolver base_url must be an http(s) URL")
	ErrInvalidRate          = errors.New("resolver rate_per_minute must be between 1 and 600")
	ErrMissingSandboxRoot   = errors.New("storage sandbox_root is required")
	ErrInvalidProxyMode     = errors.New("network proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost     = errors.New("network proxy_host is required for basic and ntlm proxy modes")
	ErrInvalidPersistWindow = errors.New("transfer persist_interval_bytes must be at least 64 KiB")
)

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			BaseURL:       constants.ResolverDefaultBaseURL,
			Timeout:       constants.ResolverTimeout,
			RatePerMinute: constants.ResolverRatePerMinute,
			Burst:         constants.ResolverBurst,
		},
		Storage: StorageConfig{
			SandboxRoot: DefaultSandboxRoot(),
			ScratchDir:  ScratchDirectory(),
			StateDir:    StateDirectory(),
		},
		Transfer: TransferConfig{
			PersistIntervalBytes: constants.PersistInterval,
			MaxRetries:           constants.MaxRetries,
			CheckDiskSpace:       true,
		},
		Network: NetworkConfig{
			ProxyMode: "no-proxy",
			ProxyPort: 8080,
		},
		Notifications: NotificationConfig{
			Enabled:              true,
			ShowDownloadComplete: true,
			ShowDownloadFailed:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "cli",
		},
	}
}

// LoadConfig loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	resolver := iniFile.Section("resolver")
	cfg.Resolver.BaseURL = resolver.Key("base_url").MustString(cfg.Resolver.BaseURL)
	cfg.Resolver.Timeout = resolver.Key("timeout").MustDuration(cfg.Resolver.Timeout)
	cfg.Resolver.RatePerMinute = resolver.Key("rate_per_minute").MustInt(cfg.Resolver.RatePerMinute)
	cfg.Resolver.Burst = resolver.Key("burst").MustInt(cfg.Resolver.Burst)

	storage := iniFile.Section("storage")
	cfg.Storage.SandboxRoot = expandHome(storage.Key("sandbox_root").MustString(cfg.Storage.SandboxRoot))
	cfg.Storage.ScratchDir = expandHome(storage.Key("scratch_dir").MustString(cfg.Storage.ScratchDir))
	cfg.Storage.StateDir = expandHome(storage.Key("state_dir").MustString(cfg.Storage.StateDir))

	transfer := iniFile.Section("transfer")
	cfg.Transfer.PersistIntervalBytes = transfer.Key("persist_interval_bytes").MustInt64(cfg.Transfer.PersistIntervalBytes)
	cfg.Transfer.MaxRetries = transfer.Key("max_retries").MustInt(cfg.Transfer.MaxRetries)
	cfg.Transfer.CheckDiskSpace = transfer.Key("check_disk_space").MustBool(cfg.Transfer.CheckDiskSpace)

	network := iniFile.Section("network")
	cfg.Network.ProxyMode = network.Key("proxy_mode").MustString(cfg.Network.ProxyMode)
	cfg.Network.ProxyHost = network.Key("proxy_host").String()
	cfg.Network.ProxyPort = network.Key("proxy_port").MustInt(cfg.Network.ProxyPort)
	cfg.Network.ProxyUser = network.Key("proxy_user").String()
	cfg.Network.NoProxy = network.Key("no_proxy").String()
	cfg.Network.ProxyWarmup = network.Key("proxy_warmup").MustBool(false)
	cfg.Network.DisableHTTP2 = network.Key("disable_http2").MustBool(false)

	notify := iniFile.Section("notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)
	cfg.Notifications.ShowDownloadComplete = notify.Key("show_download_complete").MustBool(true)
	cfg.Notifications.ShowDownloadFailed = notify.Key("show_download_failed").MustBool(true)

	logSection := iniFile.Section("log")
	cfg.Log.Level = logSection.Key("level").MustString(cfg.Log.Level)
	cfg.Log.Format = logSection.Key("format").MustString(cfg.Log.Format)

	return cfg, nil
}

// SaveConfig saves configuration to an INI file.
// Creates parent directories if they don't exist. The proxy password is never saved.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name string
		keys [][2]string
	}{
		{"resolver", [][2]string{
			{"base_url", cfg.Resolver.BaseURL},
			{"timeout", cfg.Resolver.Timeout.String()},
			{"rate_per_minute", fmt.Sprintf("%d", cfg.Resolver.RatePerMinute)},
			{"burst", fmt.Sprintf("%d", cfg.Resolver.Burst)},
		}},
		{"storage", [][2]string{
			{"sandbox_root", cfg.Storage.SandboxRoot},
			{"scratch_dir", cfg.Storage.ScratchDir},
			{"state_dir", cfg.Storage.StateDir},
		}},
		{"transfer", [][2]string{
			{"persist_interval_bytes", fmt.Sprintf("%d", cfg.Transfer.PersistIntervalBytes)},
			{"max_retries", fmt.Sprintf("%d", cfg.Transfer.MaxRetries)},
			{"check_disk_space", fmt.Sprintf("%t", cfg.Transfer.CheckDiskSpace)},
		}},
		{"network", [][2]string{
			{"proxy_mode", cfg.Network.ProxyMode},
			{"proxy_host", cfg.Network.ProxyHost},
			{"proxy_port", fmt.Sprintf("%d", cfg.Network.ProxyPort)},
			{"proxy_user", cfg.Network.ProxyUser},
			{"no_proxy", cfg.Network.NoProxy},
			{"proxy_warmup", fmt.Sprintf("%t", cfg.Network.ProxyWarmup)},
			{"disable_http2", fmt.Sprintf("%t", cfg.Network.DisableHTTP2)},
		}},
		{"notifications", [][2]string{
			{"enabled", fmt.Sprintf("%t", cfg.Notifications.Enabled)},
			{"show_download_complete", fmt.Sprintf("%t", cfg.Notifications.ShowDownloadComplete)},
			{"show_download_failed", fmt.Sprintf("%t", cfg.Notifications.ShowDownloadFailed)},
		}},
		{"log", [][2]string{
			{"level", cfg.Log.Level},
			{"format", cfg.Log.Format},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (cfg *Config) Validate() error {
	base := strings.TrimSpace(cfg.Resolver.BaseURL)
	if base == "" {
		return ErrMissingResolverURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidResolverURL
	}
	if cfg.Resolver.RatePerMinute < 1 || cfg.Resolver.RatePerMinute > 600 {
		return ErrInvalidRate
	}
	if strings.TrimSpace(cfg.Storage.SandboxRoot) == "" {
		return ErrMissingSandboxRoot
	}
	if cfg.Transfer.PersistIntervalBytes < 64*1024 {
		return ErrInvalidPersistWindow
	}

	switch strings.ToLower(cfg.Network.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Network.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// ProxyActive reports whether outbound traffic goes through a proxy.
func (n NetworkConfig) ProxyActive() bool {
	switch strings.ToLower(n.ProxyMode) {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
