// ABOUTME: Tests for server assembly and lifecycle
// ABOUTME: Covers construction, stored settings override, and graceful shutdown

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaxdesign/evobolt/internal/config"
	"github.com/gmaxdesign/evobolt/internal/store"
)

// fakeEvolution serves an empty instance list for any request.
func fakeEvolution(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Evolution: config.EvolutionConfig{
			BaseURL:        apiURL,
			APIKey:         "test-key",
			RequestTimeout: 5 * time.Second,
		},
		Pairing: config.PairingConfig{
			PollInterval: 50 * time.Millisecond,
			SettleDelay:  50 * time.Millisecond,
			Ceiling:      5 * time.Second,
		},
		Database:  config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "evobolt.db")},
		Auth:      config.AuthConfig{DemoPassword: "123456"},
		Dashboard: config.DashboardConfig{MaxInstances: 10},
	}
}

func TestNew(t *testing.T) {
	api := fakeEvolution(t)

	srv, err := New(testConfig(t, api.URL))
	require.NoError(t, err)
	require.NotNil(t, srv)

	assert.NoError(t, srv.gracefulShutdown())
}

func TestNew_ShortJWTSecret(t *testing.T) {
	api := fakeEvolution(t)

	cfg := testConfig(t, api.URL)
	cfg.Auth.JWTSecret = "too-short"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNew_AppliesStoredSettings(t *testing.T) {
	api := fakeEvolution(t)
	cfg := testConfig(t, api.URL)

	// Pre-seed stored settings at the configured database path.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	require.NoError(t, st.SaveSettings(context.Background(), &store.Settings{
		APIURL:       api.URL,
		APIKey:       "overridden-key",
		MaxInstances: 2,
	}))
	require.NoError(t, st.Close())

	srv, err := New(cfg)
	require.NoError(t, err)
	assert.NoError(t, srv.gracefulShutdown())
}

func TestRun_GracefulShutdown(t *testing.T) {
	api := fakeEvolution(t)

	srv, err := New(testConfig(t, api.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Give the server a moment to come up, then cancel.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
