package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cxcli/internal/auth"
	"cxcli/internal/cache"
	"cxcli/internal/config"
	"cxcli/internal/credentials"
	"cxcli/internal/dynacmd"
	"cxcli/internal/logging"
	"cxcli/internal/specsync"

	"github.com/charmbracelet/log"
)

// app bundles what every command needs: configuration, logger, spec cache,
// credential store and the HTTP client.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   *cache.Manager
	secrets credentials.Store
	client  *http.Client
	in      io.Reader
	out     io.Writer
}

func newApp(g *globalFlags, s streams, client *http.Client) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.GetTimeout()}
	}
	return &app{
		cfg:     cfg,
		logger:  logging.New(s.err, g.verbose),
		store:   cache.NewManager(cfg.GetCacheDir()),
		secrets: credentials.Keyring{},
		client:  client,
		in:      s.in,
		out:     s.out,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) tokenSource(creds credentials.Credentials) *auth.TokenSource {
	return auth.NewTokenSource(creds, a.secrets, a.cfg.GetTokenURL(creds.CustomerID), a.client, a.cfg.UserAgent)
}

// authorizer resolves credentials for a business call.
func (a *app) authorizer(context.Context) (dynacmd.Authorizer, error) {
	creds, err := credentials.Resolve(a.secrets)
	if err != nil {
		return nil, err
	}
	return a.tokenSource(creds), nil
}

// customerID returns the configured customer id, or "" when none is
// available. It never fails: the value only seeds flag defaults.
func (a *app) customerID() string {
	if c, ok := credentials.FromEnv(); ok {
		return c.CustomerID
	}
	c, err := credentials.Stored(a.secrets)
	if err != nil {
		a.logger.Debug("credential store unavailable", "err", err)
		return ""
	}
	return c.CustomerID
}

func (a *app) syncer() *specsync.Syncer {
	return specsync.NewSyncer(a.store, a.client, specsync.Options{
		CatalogURL:     a.cfg.GetCatalogURL(),
		CatalogBaseURL: a.cfg.CatalogBaseURL,
		Workers:        a.cfg.Workers,
		UserAgent:      a.cfg.UserAgent,
	}, a.logger)
}
