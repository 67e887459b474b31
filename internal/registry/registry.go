// ABOUTME: In-memory registry of remote instances with refresh-after-write mutations
// ABOUTME: Owns the locally visible snapshot; every mutation triggers a full re-fetch

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gmaxdesign/evobolt/internal/evolution"
)

// Status is the locally derived connection status of an instance.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"

	// StatusConnecting is never produced by the remote mapping. It exists
	// for UI-local intent only (a pairing flow in progress).
	StatusConnecting Status = "connecting"
)

// PhoneUnknown is the sentinel shown when the remote reports no owner phone.
const PhoneUnknown = "N/A"

// Instance is the local view-model of a remote instance. The ID equals the
// remote instance name and is unique within the visible set.
type Instance struct {
	ID                string
	Name              string
	Phone             string
	Status            Status
	Category          string
	ProfilePictureURL string
	ProfileStatus     string
	ServerURL         string

	// Message counters are placeholders; no telemetry feed exists.
	MessagesIn  int
	MessagesOut int
}

// Stats summarizes the snapshot for the dashboard overview.
type Stats struct {
	Total        int
	Connected    int
	Disconnected int
}

// Gateway is the slice of the remote client the registry consumes.
type Gateway interface {
	CreateInstance(ctx context.Context, req evolution.CreateInstanceRequest) (*evolution.InstanceEnvelope, error)
	FetchInstances(ctx context.Context, instanceName string) ([]evolution.InstanceEnvelope, error)
	Restart(ctx context.Context, instanceName string) error
	Logout(ctx context.Context, instanceName string) error
	Delete(ctx context.Context, instanceName string) error
}

// Registry maintains the locally visible snapshot of instances. All
// mutations follow a refresh-after-write discipline: one remote call, then
// a full list re-fetch and full local replace, never a local patch. A failed
// call leaves the previous snapshot untouched.
type Registry struct {
	gw     Gateway
	logger *slog.Logger

	mu            sync.Mutex
	instances     []Instance
	lastRefreshed time.Time
}

// New creates a Registry backed by the given gateway client.
func New(gw Gateway) *Registry {
	return &Registry{
		gw:     gw,
		logger: slog.Default().With("component", "registry"),
	}
}

// MapStatus derives the local status from a remote status string.
// "open" means connected; every other value, including empty, means
// disconnected. This mapping never produces StatusConnecting.
func MapStatus(remote string) Status {
	if remote == evolution.StateOpen {
		return StatusConnected
	}
	return StatusDisconnected
}

// mapInstance converts the remote shape to the local view-model.
func mapInstance(env evolution.InstanceEnvelope) Instance {
	info := env.Instance

	name := info.ProfileName
	if name == "" {
		name = info.InstanceName
	}

	phone := info.Owner
	if phone == "" {
		phone = PhoneUnknown
	}

	return Instance{
		ID:                info.InstanceName,
		Name:              name,
		Phone:             phone,
		Status:            MapStatus(info.Status),
		Category:          "API Instance",
		ProfilePictureURL: info.ProfilePictureURL,
		ProfileStatus:     info.ProfileStatus,
		ServerURL:         info.ServerURL,
	}
}

// Refresh re-fetches the full remote list and replaces the snapshot.
// On failure the previous snapshot is left untouched.
func (r *Registry) Refresh(ctx context.Context) error {
	envelopes, err := r.gw.FetchInstances(ctx, "")
	if err != nil {
		r.logger.Error("refresh failed", "error", err)
		return fmt.Errorf("loading instances: %w", err)
	}

	instances := make([]Instance, len(envelopes))
	for i, env := range envelopes {
		instances[i] = mapInstance(env)
	}

	r.mu.Lock()
	r.instances = instances
	r.lastRefreshed = time.Now()
	r.mu.Unlock()

	return nil
}

// Snapshot returns a copy of the current instance list. Callers may not
// mutate registry state through the returned slice.
func (r *Registry) Snapshot() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// LastRefreshed reports when the snapshot was last replaced. Zero until the
// first successful refresh.
func (r *Registry) LastRefreshed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefreshed
}

// Stats derives overview counts from the current snapshot.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Total: len(r.instances)}
	for _, inst := range r.instances {
		if inst.Status == StatusConnected {
			stats.Connected++
		} else {
			stats.Disconnected++
		}
	}
	return stats
}

// Create creates a remote instance then refreshes the snapshot.
func (r *Registry) Create(ctx context.Context, name, token string) error {
	_, err := r.gw.CreateInstance(ctx, evolution.CreateInstanceRequest{
		InstanceName: name,
		Token:        token,
		QRCode:       true,
	})
	if err != nil {
		r.logger.Error("create failed", "instance", name, "error", err)
		return fmt.Errorf("creating instance %q: %w", name, err)
	}

	return r.Refresh(ctx)
}

// Disconnect logs an instance out then refreshes the snapshot.
func (r *Registry) Disconnect(ctx context.Context, name string) error {
	if err := r.gw.Logout(ctx, name); err != nil {
		r.logger.Error("disconnect failed", "instance", name, "error", err)
		return fmt.Errorf("disconnecting instance %q: %w", name, err)
	}

	return r.Refresh(ctx)
}

// Restart restarts an instance then refreshes the snapshot.
func (r *Registry) Restart(ctx context.Context, name string) error {
	if err := r.gw.Restart(ctx, name); err != nil {
		r.logger.Error("restart failed", "instance", name, "error", err)
		return fmt.Errorf("restarting instance %q: %w", name, err)
	}

	return r.Refresh(ctx)
}

// Delete removes an instance remotely then refreshes the snapshot. The
// instance disappears locally because the refreshed list no longer carries
// it, not through any local removal.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := r.gw.Delete(ctx, name); err != nil {
		r.logger.Error("delete failed", "instance", name, "error", err)
		return fmt.Errorf("deleting instance %q: %w", name, err)
	}

	return r.Refresh(ctx)
}
