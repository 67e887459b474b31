// ABOUTME: Dashboard and instance action handlers
// ABOUTME: Renders the role-dispatched overview and drives registry mutations

package webadmin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gmaxdesign/evobolt/internal/evolution"
	"github.com/gmaxdesign/evobolt/internal/store"
)

// handleDashboard renders the overview for the authenticated principal's
// role. The snapshot is refreshed on every page load; a failed refresh shows
// the previous snapshot with an error banner.
func (a *Admin) handleDashboard(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)

	var banner string
	if err := a.registry.Refresh(r.Context()); err != nil {
		a.logger.Warn("dashboard refresh failed", "error", err)
		banner = "Could not reach the API server, showing the last known state"
	}

	a.renderDashboard(w, dashboardPageData{
		Title:         "Dashboard",
		User:          principal,
		CSRFToken:     csrfToken,
		Instances:     a.registry.Snapshot(),
		Stats:         a.registry.Stats(),
		LastRefreshed: a.registry.LastRefreshed(),
		MaxInstances:  a.effectiveMaxInstances(r),
		Error:         banner,
	})
}

// effectiveMaxInstances prefers the stored settings over the static config.
func (a *Admin) effectiveMaxInstances(r *http.Request) int {
	settings, err := a.store.GetSettings(r.Context())
	if err == nil && settings.MaxInstances > 0 {
		return settings.MaxInstances
	}
	if err != nil && !errors.Is(err, store.ErrSettingsNotFound) {
		a.logger.Warn("reading settings failed", "error", err)
	}
	return a.config.MaxInstances
}

// handleInstanceCreate creates a new instance. The token defaults to a
// fresh UUID when the form leaves it blank.
func (a *Admin) handleInstanceCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !a.validateCSRF(r) {
		a.dashboardError(w, r, "Invalid request, please try again")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		a.dashboardError(w, r, "Instance name is required")
		return
	}

	limit := a.effectiveMaxInstances(r)
	if len(a.registry.Snapshot()) >= limit {
		a.dashboardError(w, r, "Instance limit reached, delete an instance first")
		return
	}

	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		token = uuid.NewString()
	}

	if err := a.registry.Create(r.Context(), name, token); err != nil {
		a.logger.Error("instance create failed", "instance", name, "error", err)
		a.dashboardError(w, r, remoteErrorMessage(err, "Could not create the instance"))
		return
	}

	a.logger.Info("instance created", "instance", name)
	http.Redirect(w, r, "/instances/"+name+"/pair", http.StatusSeeOther)
}

// handleInstanceRestart restarts an instance.
func (a *Admin) handleInstanceRestart(w http.ResponseWriter, r *http.Request) {
	a.instanceAction(w, r, "restart", a.registry.Restart)
}

// handleInstanceDisconnect logs an instance out. A finished pairing flow is
// forgotten so the instance can pair again later.
func (a *Admin) handleInstanceDisconnect(w http.ResponseWriter, r *http.Request) {
	a.closeFlow(r.PathValue("name"))
	a.instanceAction(w, r, "disconnect", a.registry.Disconnect)
}

// handleInstanceDelete removes an instance. Any pairing flow for it is
// closed first so its poller cannot outlive the instance.
func (a *Admin) handleInstanceDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	a.closeFlow(name)
	a.instanceAction(w, r, "delete", a.registry.Delete)
}

// instanceAction runs one registry mutation with shared form and error
// handling.
func (a *Admin) instanceAction(w http.ResponseWriter, r *http.Request, verb string, action func(ctx context.Context, name string) error) {
	if err := r.ParseForm(); err != nil || (!csrfExempt(r) && !a.validateCSRF(r)) {
		a.dashboardError(w, r, "Invalid request, please try again")
		return
	}

	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "instance name required", http.StatusBadRequest)
		return
	}

	if err := action(r.Context(), name); err != nil {
		a.logger.Error("instance action failed", "action", verb, "instance", name, "error", err)
		a.dashboardError(w, r, remoteErrorMessage(err, "Could not "+verb+" the instance"))
		return
	}

	a.logger.Info("instance action completed", "action", verb, "instance", name)
	if csrfExempt(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// dashboardError re-renders the dashboard with an error banner.
func (a *Admin) dashboardError(w http.ResponseWriter, r *http.Request, msg string) {
	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)

	a.renderDashboard(w, dashboardPageData{
		Title:         "Dashboard",
		User:          principal,
		CSRFToken:     csrfToken,
		Instances:     a.registry.Snapshot(),
		Stats:         a.registry.Stats(),
		LastRefreshed: a.registry.LastRefreshed(),
		MaxInstances:  a.effectiveMaxInstances(r),
		Error:         msg,
	})
}

// remoteErrorMessage distinguishes remote API rejections from transport
// failures in the user-facing message.
func remoteErrorMessage(err error, fallback string) string {
	var apiErr *evolution.APIError
	if errors.As(err, &apiErr) {
		return fallback + ": the API server rejected the request"
	}
	return fallback
}

// instancesResponse is the JSON shape of the instances endpoint.
type instancesResponse struct {
	Instances     []instanceJSON `json:"instances"`
	Total         int            `json:"total"`
	Connected     int            `json:"connected"`
	Disconnected  int            `json:"disconnected"`
	LastRefreshed time.Time      `json:"lastRefreshed"`
}

type instanceJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// handleInstancesJSON serves the current snapshot as JSON. Works with both
// the session cookie and a Bearer token.
func (a *Admin) handleInstancesJSON(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Refresh(r.Context()); err != nil {
		a.logger.Warn("json refresh failed", "error", err)
	}

	snapshot := a.registry.Snapshot()
	stats := a.registry.Stats()

	resp := instancesResponse{
		Instances:     make([]instanceJSON, len(snapshot)),
		Total:         stats.Total,
		Connected:     stats.Connected,
		Disconnected:  stats.Disconnected,
		LastRefreshed: a.registry.LastRefreshed(),
	}
	for i, inst := range snapshot {
		resp.Instances[i] = instanceJSON{
			ID:     inst.ID,
			Name:   inst.Name,
			Phone:  inst.Phone,
			Status: string(inst.Status),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Error("encoding instances response failed", "error", err)
	}
}
