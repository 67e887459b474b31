// ABOUTME: HTTP client for the remote Evolution instance-management API
// ABOUTME: One method per remote endpoint, static apikey auth, no retries

package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned for any non-2xx response from the remote API.
// The dashboard never distinguishes status codes; the code is carried
// for logs and debugging only.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("evolution api: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// CreateInstanceRequest is the payload for creating a remote instance.
type CreateInstanceRequest struct {
	InstanceName string `json:"instanceName"`
	Token        string `json:"token"`
	QRCode       bool   `json:"qrcode"`
}

// InstanceInfo is the remote representation of a managed instance.
type InstanceInfo struct {
	InstanceName      string `json:"instanceName"`
	Owner             string `json:"owner"`
	ProfileName       string `json:"profileName"`
	ProfilePictureURL string `json:"profilePictureUrl"`
	ProfileStatus     string `json:"profileStatus"`
	Status            string `json:"status"`
	ServerURL         string `json:"serverUrl"`
	APIKey            string `json:"apikey"`
}

// InstanceEnvelope wraps an InstanceInfo the way the remote list endpoint does.
type InstanceEnvelope struct {
	Instance InstanceInfo `json:"instance"`
}

// QRCode is the pairing artifact returned by the connect endpoint.
type QRCode struct {
	Code   string `json:"code"`
	Base64 string `json:"base64"`
}

// ConnectionState is the reply from the connection-state endpoint.
// StateOpen means the instance is paired.
type ConnectionState struct {
	State string `json:"state"`
}

// StateOpen is the remote sentinel for a paired, connected instance.
const StateOpen = "open"

// Client talks to an Evolution-API-compatible server. All operations are
// stateless: a fixed apikey header authenticates every call and no call
// is retried.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the given base URL and API key. A zero timeout
// leaves the platform default in place.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "evolution"),
	}
}

// CreateInstance creates a new remote instance.
func (c *Client) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*InstanceEnvelope, error) {
	var out InstanceEnvelope
	if err := c.do(ctx, http.MethodPost, "/instance/create", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchInstances lists remote instances. A non-empty instanceName narrows
// the result to that instance.
func (c *Client) FetchInstances(ctx context.Context, instanceName string) ([]InstanceEnvelope, error) {
	var query url.Values
	if instanceName != "" {
		query = url.Values{"instanceName": []string{instanceName}}
	}

	var out []InstanceEnvelope
	if err := c.do(ctx, http.MethodGet, "/instance/fetchInstances", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect begins the pairing flow for an instance and returns the QR artifact.
func (c *Client) Connect(ctx context.Context, instanceName string) (*QRCode, error) {
	var out QRCode
	if err := c.do(ctx, http.MethodGet, "/instance/connect/"+instanceName, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectionState reports the current pairing state of an instance.
func (c *Client) ConnectionState(ctx context.Context, instanceName string) (*ConnectionState, error) {
	var out ConnectionState
	if err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+instanceName, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Restart restarts an instance.
func (c *Client) Restart(ctx context.Context, instanceName string) error {
	return c.do(ctx, http.MethodPut, "/instance/restart/"+instanceName, nil, nil, nil)
}

// Logout disconnects an instance without deleting it.
func (c *Client) Logout(ctx context.Context, instanceName string) error {
	return c.do(ctx, http.MethodDelete, "/instance/logout/"+instanceName, nil, nil, nil)
}

// Delete removes an instance from the remote server.
func (c *Client) Delete(ctx context.Context, instanceName string) error {
	return c.do(ctx, http.MethodDelete, "/instance/delete/"+instanceName, nil, nil, nil)
}

// do issues a single request and decodes the JSON response into out when
// out is non-nil. Any non-2xx status becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain the body so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		c.logger.Error("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}

	return nil
}
