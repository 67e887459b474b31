// ABOUTME: Template data structures and rendering helpers
// ABOUTME: Each page parses base.html plus its own template at render time

package webadmin

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gmaxdesign/evobolt/internal/auth"
	"github.com/gmaxdesign/evobolt/internal/registry"
	"github.com/gmaxdesign/evobolt/internal/store"
)

// loginPageData holds data for the login page. User is always nil; the
// field exists so the shared chrome renders without a session.
type loginPageData struct {
	Title     string
	User      *auth.Principal
	Error     string
	CSRFToken string
}

// dashboardPageData holds data for both dashboard views
type dashboardPageData struct {
	Title         string
	User          *auth.Principal
	CSRFToken     string
	Instances     []registry.Instance
	Stats         registry.Stats
	LastRefreshed time.Time
	MaxInstances  int
	Error         string
}

// AtLimit reports whether the create form should be disabled.
func (d dashboardPageData) AtLimit() bool {
	return d.MaxInstances > 0 && len(d.Instances) >= d.MaxInstances
}

// pairingPageData holds data for the QR pairing page
type pairingPageData struct {
	Title        string
	User         *auth.Principal
	CSRFToken    string
	InstanceName string
}

// settingsPageData holds data for the settings page
type settingsPageData struct {
	Title     string
	User      *auth.Principal
	CSRFToken string
	Settings  store.Settings
	Saved     bool
	Error     string
}

// helpPageData holds data for the help page
type helpPageData struct {
	Title     string
	User      *auth.Principal
	CSRFToken string
	Content   template.HTML
}

func (a *Admin) renderLoginPage(w http.ResponseWriter, errorMsg string, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := loginPageData{
		Title:     "Login",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		a.logger.Error("failed to render login page", "error", err)
	}
}

func (a *Admin) renderDashboard(w http.ResponseWriter, data dashboardPageData) {
	page := "templates/dashboard_client.html"
	if data.User != nil && data.User.IsAdmin() {
		page = "templates/dashboard_admin.html"
	}
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/partials/instances_table.html", page))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		a.logger.Error("failed to render dashboard", "error", err)
	}
}

func (a *Admin) renderPairingPage(w http.ResponseWriter, data pairingPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/pairing.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		a.logger.Error("failed to render pairing page", "error", err)
	}
}

func (a *Admin) renderSettingsPage(w http.ResponseWriter, data settingsPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/settings.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		a.logger.Error("failed to render settings page", "error", err)
	}
}

func (a *Admin) renderHelpPage(w http.ResponseWriter, data helpPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/help.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		a.logger.Error("failed to render help page", "error", err)
	}
}
