// ABOUTME: QR pairing handlers for the dashboard
// ABOUTME: Manages per-instance pairing flows and the polled JSON state endpoint

package webadmin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gmaxdesign/evobolt/internal/pairing"
	"github.com/gmaxdesign/evobolt/internal/registry"
)

// flowFor returns the pairing flow for an instance, creating and starting
// one when none exists. Flows run on a background context so they survive
// the page request; Close tears them down on shutdown.
func (a *Admin) flowFor(name string) *pairing.Flow {
	a.flowsMu.Lock()
	defer a.flowsMu.Unlock()

	if flow, ok := a.flows[name]; ok {
		return flow
	}

	flow := pairing.NewFlow(a.pairGateway, name, a.config.Pairing, func() {
		a.onPaired(name)
	})
	a.flows[name] = flow
	flow.Start(context.Background())
	return flow
}

// existingFlow returns the flow for an instance, nil when none was started.
func (a *Admin) existingFlow(name string) *pairing.Flow {
	a.flowsMu.Lock()
	defer a.flowsMu.Unlock()
	return a.flows[name]
}

// closeFlow cancels and forgets the flow for an instance, if any.
func (a *Admin) closeFlow(name string) {
	a.flowsMu.Lock()
	flow := a.flows[name]
	delete(a.flows, name)
	a.flowsMu.Unlock()

	if flow != nil {
		flow.Close()
	}
}

// onPaired refreshes the snapshot after a flow reports success, so the
// instance shows as connected without waiting for the next page load.
func (a *Admin) onPaired(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.registry.Refresh(ctx); err != nil {
		a.logger.Warn("post-pairing refresh failed", "instance", name, "error", err)
		return
	}
	a.logger.Info("instance paired", "instance", name)
}

// handlePairingPage renders the QR pairing page and starts the flow.
func (a *Admin) handlePairingPage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !a.instanceVisible(r.Context(), name) {
		http.Error(w, "instance not found", http.StatusNotFound)
		return
	}

	a.flowFor(name)

	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)
	a.renderPairingPage(w, pairingPageData{
		Title:        "Connect " + name,
		User:         principal,
		CSRFToken:    csrfToken,
		InstanceName: name,
	})
}

// instanceVisible reports whether the instance is in the current snapshot,
// refreshing once when it is not.
func (a *Admin) instanceVisible(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	if snapshotContains(a.registry.Snapshot(), name) {
		return true
	}
	if err := a.registry.Refresh(ctx); err != nil {
		return false
	}
	return snapshotContains(a.registry.Snapshot(), name)
}

func snapshotContains(instances []registry.Instance, name string) bool {
	for _, inst := range instances {
		if inst.ID == name {
			return true
		}
	}
	return false
}

// pairingStateResponse is the JSON shape the pairing page polls.
type pairingStateResponse struct {
	State string `json:"state"`
	Code  string `json:"code,omitempty"`
	QR    string `json:"qr,omitempty"`
	Error string `json:"error,omitempty"`
}

// handlePairingState reports the flow state as JSON.
func (a *Admin) handlePairingState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	flow := a.existingFlow(name)
	if flow == nil {
		http.Error(w, "no pairing in progress", http.StatusNotFound)
		return
	}

	resp := pairingStateResponse{State: string(flow.State())}
	if qr := flow.QR(); qr != nil {
		resp.Code = qr.Code
		resp.QR = qr.Base64
	}
	if err := flow.Err(); err != nil {
		resp.Error = pairingErrorMessage(err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Error("encoding pairing state failed", "error", err)
	}
}

// pairingErrorMessage maps flow errors to user-facing text.
func pairingErrorMessage(err error) string {
	switch {
	case errors.Is(err, pairing.ErrTimeout):
		return "The QR code expired before it was scanned. Generate a new one to try again."
	case errors.Is(err, pairing.ErrArtifactFetch):
		return "Could not obtain a QR code from the API server."
	default:
		return "Pairing failed."
	}
}

// handlePairingRetry discards the in-flight attempt and fetches a new QR.
func (a *Admin) handlePairingRetry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !a.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	name := r.PathValue("name")
	flow := a.existingFlow(name)
	if flow == nil {
		http.Error(w, "no pairing in progress", http.StatusNotFound)
		return
	}

	flow.Retry(context.Background())
	w.WriteHeader(http.StatusNoContent)
}

// handlePairingClose abandons the pairing flow and returns to the dashboard.
func (a *Admin) handlePairingClose(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !a.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	a.closeFlow(r.PathValue("name"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
