package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wayfare/cli/internal/auth"
	"wayfare/cli/internal/backend"
	"wayfare/cli/internal/biometric"
	"wayfare/cli/internal/config"
	"wayfare/cli/internal/keychain"
	"wayfare/cli/internal/logging"
	"wayfare/cli/internal/manifest"
	"wayfare/cli/internal/telemetry"
	"wayfare/cli/internal/tokenstore"
)

// runtime is everything a command needs, wired once per process.
type runtime struct {
	cfg     config.Config
	log     *slog.Logger
	baseURL string
	ring    *keychain.Manager
	store   *tokenstore.Store
	api     *backend.HTTP
	manager *auth.Manager
	gate    *biometric.Gate

	shutdownTracing func(context.Context) error
}

var (
	rtOnce sync.Once
	rt     *runtime
	rtErr  error
)

// loadRuntime builds the runtime on first use: config, logger, tracing, keychain,
// token store, endpoint manifest, backend client, session manager and biometric gate.
func loadRuntime(ctx context.Context) (*runtime, error) {
	rtOnce.Do(func() { rt, rtErr = buildRuntime(ctx) })
	return rt, rtErr
}

func buildRuntime(ctx context.Context) (*runtime, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Verbose: cfg.Verbose})

	tp, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint: cfg.Telemetry.Endpoint,
		Disabled: cfg.Telemetry.Disabled,
		Version:  Version,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	ring, err := keychain.Open(keychain.Config{
		Backend:      cfg.Keyring.Backend,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	store := tokenstore.New(ring,
		tokenstore.WithRefreshBuffer(cfg.RefreshBuffer),
		tokenstore.WithLogger(log))

	resolved := manifest.Resolve(ctx, manifest.Options{
		URL:          cfg.ManifestURL,
		PublicKeyPEM: cfg.ManifestPublicKey,
		UserAgent:    "wayfare-cli/" + Version,
		Logger:       log,
	})
	baseURL := cfg.BaseURL
	switch {
	case strings.TrimSpace(baseURLFlag) != "":
		baseURL = strings.TrimSpace(baseURLFlag)
	case resolved.BaseURL != "":
		baseURL = resolved.BaseURL
	}

	api := backend.New(backend.Config{
		BaseURL:        baseURL,
		Endpoints:      resolved.Endpoints,
		RequestTimeout: cfg.RequestTimeout,
		Retry: backend.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Multiplier:  cfg.Retry.Multiplier,
			Jitter:      cfg.Retry.Jitter,
		},
		DeviceID: cfg.DeviceID,
		Version:  Version,
	}, backend.WithLogger(log), backend.WithTracerProvider(tp))

	manager := auth.NewManager(store, api, auth.WithLogger(log))
	auth.Init(manager)

	var dev biometric.Device = biometric.Unavailable{}
	if cfg.Biometric.Device == "terminal" {
		dev = &biometric.Terminal{}
	}
	gate := biometric.NewGate(dev, store, biometric.WithLogger(log))

	log.Debug("runtime ready", "base_url", baseURL, "keyring", ring.Name(), "manifest", resolved.Remote)
	return &runtime{
		cfg:     cfg,
		log:     log,
		baseURL: baseURL,
		ring:    ring,
		store:   store,
		api:     api,
		manager: manager,
		gate:    gate,

		shutdownTracing: shutdownTracing,
	}, nil
}

// closeRuntime flushes pending spans. It is a no-op when no runtime was built.
func closeRuntime() {
	if rt == nil || rt.shutdownTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.shutdownTracing(ctx); err != nil {
		rt.log.Debug("flush traces", "error", err)
	}
}

// session initializes the process-wide manager and returns it with the settled state.
func session(ctx context.Context) (*auth.Manager, auth.State, error) {
	if _, err := loadRuntime(ctx); err != nil {
		return nil, auth.State{}, err
	}
	m := auth.MustDefault()
	st, err := m.Initialize(ctx)
	return m, st, err
}
