// ABOUTME: Admin-only settings page handlers
// ABOUTME: Persists the dashboard settings blob through the store

package webadmin

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gmaxdesign/evobolt/internal/store"
)

// currentSettings returns the stored settings, falling back to the
// configured defaults before anything was saved.
func (a *Admin) currentSettings(r *http.Request) store.Settings {
	settings, err := a.store.GetSettings(r.Context())
	if err != nil {
		if !errors.Is(err, store.ErrSettingsNotFound) {
			a.logger.Warn("reading settings failed", "error", err)
		}
		return a.config.DefaultSettings
	}
	return *settings
}

// handleSettingsPage renders the settings form.
func (a *Admin) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)

	a.renderSettingsPage(w, settingsPageData{
		Title:     "Settings",
		User:      principal,
		CSRFToken: csrfToken,
		Settings:  a.currentSettings(r),
	})
}

// handleSettingsSave validates and persists the settings blob. Saved values
// take effect for the instance limit immediately; the API target applies on
// the next restart.
func (a *Admin) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)

	render := func(data settingsPageData) {
		data.Title = "Settings"
		data.User = principal
		data.CSRFToken = csrfToken
		a.renderSettingsPage(w, data)
	}

	if err := r.ParseForm(); err != nil || !a.validateCSRF(r) {
		render(settingsPageData{Settings: a.currentSettings(r), Error: "Invalid request, please try again"})
		return
	}

	settings := store.Settings{
		APIURL: strings.TrimSpace(r.FormValue("api_url")),
		APIKey: strings.TrimSpace(r.FormValue("api_key")),
	}

	if settings.APIURL == "" {
		render(settingsPageData{Settings: settings, Error: "API URL is required"})
		return
	}
	if u, err := url.Parse(settings.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		render(settingsPageData{Settings: settings, Error: "API URL must be a full http(s) URL"})
		return
	}

	maxInstances, err := strconv.Atoi(strings.TrimSpace(r.FormValue("max_instances")))
	if err != nil || maxInstances < 1 {
		render(settingsPageData{Settings: settings, Error: "Max instances must be a positive number"})
		return
	}
	settings.MaxInstances = maxInstances

	if err := a.store.SaveSettings(r.Context(), &settings); err != nil {
		a.logger.Error("saving settings failed", "error", err)
		render(settingsPageData{Settings: settings, Error: "Could not save settings"})
		return
	}

	a.logger.Info("settings saved", "api_url", settings.APIURL, "max_instances", settings.MaxInstances)
	render(settingsPageData{Settings: settings, Saved: true})
}
