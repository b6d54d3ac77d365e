package manifest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"wayfare/cli/internal/logging"
)

// Options configures Resolve.
type Options struct {
	// URL of the remote manifest. Empty means built-in defaults only.
	URL          string
	PublicKeyPEM string
	UserAgent    string
	Client       *http.Client
	Logger       *slog.Logger
}

// Resolved is the endpoint table in effect.
type Resolved struct {
	Endpoints Endpoints
	// BaseURL overrides the configured base URL when the manifest sets one.
	BaseURL string
	Remote  bool
}

// Resolve returns the endpoint table, using the RAM cache if available. A remote
// manifest that cannot be fetched or verified is logged and the defaults are used,
// so sign-in still works against the configured base URL.
func Resolve(ctx context.Context, opts Options) Resolved {
	def := Resolved{Endpoints: DefaultEndpoints()}
	if opts.URL == "" {
		return def
	}
	if cached := GetCached(opts.URL); cached != nil {
		return Resolved{Endpoints: cached.HTTP, BaseURL: cached.BaseURL, Remote: true}
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	m, err := Fetch(ctx, client, opts.URL, opts.PublicKeyPEM, opts.UserAgent)
	if err != nil {
		log.Warn("endpoint manifest unavailable, using defaults", "url", opts.URL, "error", err)
		return def
	}
	SetCached(opts.URL, m)
	log.Debug("endpoint manifest loaded", "url", opts.URL, "version", m.Version)
	return Resolved{Endpoints: m.HTTP, BaseURL: m.BaseURL, Remote: true}
}
