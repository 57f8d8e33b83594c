package cli

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"

	"golang.org/x/term"

	"github.com/mixtape/mixtape/internal/config"
	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/destination"
	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/http"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/notify"
	"github.com/mixtape/mixtape/internal/ratelimit"
	"github.com/mixtape/mixtape/internal/registry"
	"github.com/mixtape/mixtape/internal/resolver"
	"github.com/mixtape/mixtape/internal/state"
	"github.com/mixtape/mixtape/internal/storage/grant"
	"github.com/mixtape/mixtape/internal/transfer"
)

// app holds the services a command works with. Everything is built from
// one loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *events.EventBus
	client   *nethttp.Client
	dests    *destination.Service
	manager  *transfer.Manager
	registry *registry.Registry
	notifier *notify.Notifier
}

// newApp loads configuration and wires the services.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirectories(cfg); err != nil {
		return nil, err
	}

	log := GetLogger()
	if http.NeedsProxyPassword(cfg.Network) {
		if cfg.Network.ProxyPassword, err = readProxyPassword(cfg.Network.ProxyUser); err != nil {
			return nil, err
		}
	}
	client, err := http.CreateTransferClient(cfg.Network, log)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	notifier := notify.NewNotifier(&notify.Config{
		Enabled:              cfg.Notifications.Enabled,
		ShowDownloadComplete: cfg.Notifications.ShowDownloadComplete,
		ShowDownloadFailed:   cfg.Notifications.ShowDownloadFailed,
	}, log)

	dests := destination.NewService(destination.Options{
		SandboxRoot:    cfg.Storage.SandboxRoot,
		ScratchDir:     cfg.Storage.ScratchDir,
		StateDir:       cfg.Storage.StateDir,
		Grant:          grant.Options{HTTPClient: client, Logger: log},
		CommitAttempts: cfg.Transfer.MaxRetries,
		Logger:         log,
	})

	manager := transfer.NewManager(transfer.Options{
		Client:          client,
		Destinations:    dests,
		Store:           state.NewFileResumeStore(cfg.Storage.StateDir),
		EventBus:        bus,
		Notifier:        notifier,
		Logger:          log,
		PersistInterval: cfg.Transfer.PersistIntervalBytes,
		CheckDiskSpace:  cfg.Transfer.CheckDiskSpace,
	})

	return &app{
		cfg:      cfg,
		logger:   log,
		bus:      bus,
		client:   client,
		dests:    dests,
		manager:  manager,
		registry: registry.New(dests, bus, log),
		notifier: notifier,
	}, nil
}

// readProxyPassword asks for the proxy password without echo.
func readProxyPassword(user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("proxy user %s needs a password: set %s_PROXY_PASSWORD", user, EnvPrefix)
	}
	fmt.Fprintf(os.Stderr, "Proxy password for %s: ", user)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read proxy password: %w", err)
	}
	return string(pw), nil
}

// resolver builds a resolver client. The proxy may need its own warmup, so
// it gets a separate base client from the transfer one.
func (a *app) resolver() (*resolver.Client, error) {
	base, err := http.ConfigureHTTPClient(a.cfg.Network, a.cfg.Resolver.BaseURL, a.logger)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.NewPerMinute(a.cfg.Resolver.RatePerMinute, a.cfg.Resolver.Burst)
	limiter.SetLogger(a.logger)

	return resolver.NewClient(resolver.Options{
		BaseURL:    a.cfg.Resolver.BaseURL,
		Timeout:    a.cfg.Resolver.Timeout,
		HTTPClient: base,
		Limiter:    limiter,
		RetryMax:   a.cfg.Transfer.MaxRetries,
		Logger:     a.logger,
	})
}

// logEvents writes bus events to the debug log until ctx ends.
func (a *app) logEvents(ctx context.Context) {
	ch := a.bus.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				e := a.logger.Debug().Str("event", string(ev.Type()))
				switch v := ev.(type) {
				case *events.TransferEvent:
					e = e.Str("session", v.SessionID).Int64("bytes", v.Progress.BytesWritten)
				case *events.DestinationChangedEvent:
					e = e.Str("destination", v.Current.String())
				case *events.ArtifactDeletedEvent:
					e = e.Str("file", v.Entry.FileName)
				}
				e.Msg("Event")
			}
		}
	}()
}

// close releases the event bus.
func (a *app) close() {
	a.bus.Close()
}
