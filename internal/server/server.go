// ABOUTME: Server wires the store, remote client, registry, and dashboard together
// ABOUTME: Serves over plain TCP or a tsnet node and owns graceful shutdown

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/gmaxdesign/evobolt/internal/auth"
	"github.com/gmaxdesign/evobolt/internal/config"
	"github.com/gmaxdesign/evobolt/internal/evolution"
	"github.com/gmaxdesign/evobolt/internal/pairing"
	"github.com/gmaxdesign/evobolt/internal/registry"
	"github.com/gmaxdesign/evobolt/internal/store"
	"github.com/gmaxdesign/evobolt/internal/webadmin"
)

// Server is the assembled evobolt process.
type Server struct {
	config *config.Config
	logger *slog.Logger

	store       *store.SQLiteStore
	registry    *registry.Registry
	admin       *webadmin.Admin
	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New builds the full dependency graph from config. Stored dashboard
// settings, when present, override the configured API target and instance
// limit.
func New(cfg *config.Config) (*Server, error) {
	logger := slog.Default().With("component", "server")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	apiURL := cfg.Evolution.BaseURL
	apiKey := cfg.Evolution.APIKey
	maxInstances := cfg.Dashboard.MaxInstances

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	settings, err := st.GetSettings(ctx)
	cancel()
	switch {
	case err == nil:
		logger.Info("applying stored dashboard settings", "api_url", settings.APIURL)
		apiURL = settings.APIURL
		if settings.APIKey != "" {
			apiKey = settings.APIKey
		}
		if settings.MaxInstances > 0 {
			maxInstances = settings.MaxInstances
		}
	case errors.Is(err, store.ErrSettingsNotFound):
		// First run, config values apply.
	default:
		st.Close()
		return nil, fmt.Errorf("reading stored settings: %w", err)
	}

	client := evolution.New(apiURL, apiKey, cfg.Evolution.RequestTimeout)
	reg := registry.New(client)

	authenticator, err := auth.NewDemoAuthenticator(cfg.Auth.DemoPassword)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building authenticator: %w", err)
	}

	var tokens auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("building token verifier: %w", err)
		}
		tokens = verifier
	}

	admin := webadmin.New(st, reg, client, authenticator, tokens, webadmin.Config{
		MaxInstances: maxInstances,
		Pairing: pairing.Config{
			PollInterval: cfg.Pairing.PollInterval,
			SettleDelay:  cfg.Pairing.SettleDelay,
			Ceiling:      cfg.Pairing.Ceiling,
		},
		DefaultSettings: store.Settings{
			APIURL:       cfg.Evolution.BaseURL,
			APIKey:       cfg.Evolution.APIKey,
			MaxInstances: cfg.Dashboard.MaxInstances,
		},
	})

	mux := http.NewServeMux()
	admin.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", handleHealth)

	return &Server{
		config:   cfg,
		logger:   logger,
		store:    st,
		registry: reg,
		admin:    admin,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Run serves until ctx is canceled or the listener fails, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Warm the snapshot so the first page load is not a cold fetch. A dead
	// remote must not prevent startup.
	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := s.registry.Refresh(warmCtx); err != nil {
		s.logger.Warn("initial instance refresh failed", "error", err)
	}
	cancel()

	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		s.logger.Error("server error", "error", serveErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already
// canceled by the time shutdown begins.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.admin.Close()

	err := s.httpServer.Shutdown(ctx)

	if s.tsnetServer != nil {
		if closeErr := s.tsnetServer.Close(); closeErr != nil {
			s.logger.Warn("closing tailscale node", "error", closeErr)
		}
	}

	if closeErr := s.store.Close(); closeErr != nil {
		s.logger.Warn("closing store", "error", closeErr)
	}

	return err
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using the default
// when not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "evobolt", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet node and listens on it.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node up", "hostname", hostname, "addr", tsAddr, "dns_name", dnsName)
}
