// ABOUTME: Tests for the Evolution API client
// ABOUTME: Covers endpoint paths, headers, payloads, and error mapping

package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInstance(t *testing.T) {
	var gotMethod, gotPath, gotKey, gotContentType string
	var gotBody CreateInstanceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(InstanceEnvelope{
			Instance: InstanceInfo{InstanceName: "acct-1", Status: "close"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-key", 0)
	resp, err := client.CreateInstance(context.Background(), CreateInstanceRequest{
		InstanceName: "acct-1",
		Token:        "tok",
		QRCode:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/instance/create", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "acct-1", gotBody.InstanceName)
	assert.True(t, gotBody.QRCode)
	assert.Equal(t, "acct-1", resp.Instance.InstanceName)
}

func TestFetchInstances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/fetchInstances", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]InstanceEnvelope{
			{Instance: InstanceInfo{InstanceName: "a", Status: "open"}},
			{Instance: InstanceInfo{InstanceName: "b", Status: "close"}},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "k", 0)
	instances, err := client.FetchInstances(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "a", instances[0].Instance.InstanceName)
}

func TestFetchInstances_NameFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acct-1", r.URL.Query().Get("instanceName"))
		_ = json.NewEncoder(w).Encode([]InstanceEnvelope{})
	}))
	defer srv.Close()

	client := New(srv.URL, "k", 0)
	_, err := client.FetchInstances(context.Background(), "acct-1")
	require.NoError(t, err)
}

func TestConnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/instance/connect/acct-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(QRCode{Code: "pairing-code", Base64: "aW1hZ2U="})
	}))
	defer srv.Close()

	client := New(srv.URL, "k", 0)
	qr, err := client.Connect(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "pairing-code", qr.Code)
	assert.Equal(t, "aW1hZ2U=", qr.Base64)
}

func TestConnectionState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/connectionState/acct-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ConnectionState{State: StateOpen})
	}))
	defer srv.Close()

	client := New(srv.URL, "k", 0)
	state, err := client.ConnectionState(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state.State)
}

func TestMutationMethods(t *testing.T) {
	tests := []struct {
		name       string
		call       func(*Client) error
		wantMethod string
		wantPath   string
	}{
		{
			name:       "restart",
			call:       func(c *Client) error { return c.Restart(context.Background(), "acct-1") },
			wantMethod: http.MethodPut,
			wantPath:   "/instance/restart/acct-1",
		},
		{
			name:       "logout",
			call:       func(c *Client) error { return c.Logout(context.Background(), "acct-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/instance/logout/acct-1",
		},
		{
			name:       "delete",
			call:       func(c *Client) error { return c.Delete(context.Background(), "acct-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/instance/delete/acct-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			client := New(srv.URL, "k", 0)
			require.NoError(t, tt.call(client))
			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantPath, gotPath)
		})
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, "wrong-key", 0)
	_, err := client.FetchInstances(context.Background(), "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/instance/fetchInstances", apiErr.Path)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(srv.URL, "k", 0)
	_, err := client.FetchInstances(ctx, "")
	require.Error(t, err)
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/fetchInstances", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]InstanceEnvelope{})
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "k", 0)
	_, err := client.FetchInstances(context.Background(), "")
	require.NoError(t, err)
}
