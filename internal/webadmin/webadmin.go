// ABOUTME: Web dashboard package for evobolt instance management
// ABOUTME: Provides authentication, session management, and role-gated routes

package webadmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gmaxdesign/evobolt/internal/auth"
	"github.com/gmaxdesign/evobolt/internal/pairing"
	"github.com/gmaxdesign/evobolt/internal/registry"
	"github.com/gmaxdesign/evobolt/internal/store"
)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "evobolt_session"

	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "evobolt_csrf"

	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalContextKey contextKey = "dashboard_principal"
const csrfContextKey contextKey = "csrf_token"

// Config holds dashboard configuration
type Config struct {
	// MaxInstances caps how many instances the create form accepts when no
	// stored settings override it.
	MaxInstances int
	// Pairing carries the pairing flow timings.
	Pairing pairing.Config
	// DefaultSettings seeds the settings form before anything is saved.
	DefaultSettings store.Settings
}

// Admin handles dashboard routes and authentication
type Admin struct {
	store         store.Store
	registry      *registry.Registry
	pairGateway   pairing.Gateway
	authenticator auth.Authenticator
	tokens        auth.TokenVerifier
	config        Config
	logger        *slog.Logger

	flowsMu sync.Mutex
	flows   map[string]*pairing.Flow

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// New creates a new dashboard handler. tokens may be nil, in which case
// Bearer authentication on the JSON endpoints is disabled.
func New(st store.Store, reg *registry.Registry, pairGW pairing.Gateway, authenticator auth.Authenticator, tokens auth.TokenVerifier, cfg Config) *Admin {
	a := &Admin{
		store:         st,
		registry:      reg,
		pairGateway:   pairGW,
		authenticator: authenticator,
		tokens:        tokens,
		config:        cfg,
		logger:        slog.Default().With("component", "webadmin"),
		flows:         make(map[string]*pairing.Flow),
		janitorStop:   make(chan struct{}),
	}

	go a.sessionJanitor()

	return a
}

// Close cancels all pairing flows and stops background cleanup.
func (a *Admin) Close() {
	a.janitorOnce.Do(func() { close(a.janitorStop) })

	a.flowsMu.Lock()
	defer a.flowsMu.Unlock()
	for _, flow := range a.flows {
		flow.Close()
	}
	a.flows = make(map[string]*pairing.Flow)
}

// sessionJanitor periodically removes expired sessions.
func (a *Admin) sessionJanitor() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.janitorStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := a.store.DeleteExpiredSessions(ctx); err != nil {
				a.logger.Warn("session cleanup failed", "error", err)
			}
			cancel()
		}
	}
}

// RegisterRoutes registers all dashboard routes on the given mux
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	// Public routes (no auth required)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)

	// Protected routes (auth required)
	mux.HandleFunc("GET /{$}", a.requireAuth(a.handleDashboard))
	mux.HandleFunc("POST /logout", a.requireAuth(a.handleLogout))

	// Instance management. Create and delete are admin-only; restart and
	// disconnect are available to both roles.
	mux.HandleFunc("POST /instances", a.requireAdmin(a.handleInstanceCreate))
	mux.HandleFunc("POST /instances/{name}/restart", a.requireAuth(a.handleInstanceRestart))
	mux.HandleFunc("POST /instances/{name}/disconnect", a.requireAuth(a.handleInstanceDisconnect))
	mux.HandleFunc("POST /instances/{name}/delete", a.requireAdmin(a.handleInstanceDelete))
	mux.HandleFunc("DELETE /instances/{name}", a.requireAdmin(a.handleInstanceDelete))
	mux.HandleFunc("GET /instances.json", a.requireAuth(a.handleInstancesJSON))

	// QR pairing
	mux.HandleFunc("GET /instances/{name}/pair", a.requireAuth(a.handlePairingPage))
	mux.HandleFunc("GET /instances/{name}/pair/state", a.requireAuth(a.handlePairingState))
	mux.HandleFunc("POST /instances/{name}/pair/retry", a.requireAuth(a.handlePairingRetry))
	mux.HandleFunc("POST /instances/{name}/pair/close", a.requireAuth(a.handlePairingClose))

	// Settings (admin only)
	mux.HandleFunc("GET /settings", a.requireAdmin(a.handleSettingsPage))
	mux.HandleFunc("POST /settings", a.requireAdmin(a.handleSettingsSave))

	// Help
	mux.HandleFunc("GET /help/connect", a.requireAuth(a.handleConnectHelp))

	a.logger.Info("dashboard routes registered")
}

// requireAuth wraps a handler to require authentication
func (a *Admin) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.principalFromRequest(r)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		// Add principal to context
		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin wraps a handler to require the admin role
func (a *Admin) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFromContext(r)
		if principal == nil || !principal.IsAdmin() {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// principalFromRequest resolves the principal from the session cookie, or
// from a Bearer token on JSON endpoints when a verifier is configured.
func (a *Admin) principalFromRequest(r *http.Request) (*auth.Principal, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		session, err := a.store.GetSession(r.Context(), cookie.Value)
		if err == nil {
			return principalFromSession(session), nil
		}
		if !errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
	}

	if a.tokens != nil {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			email, err := a.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				return nil, err
			}
			return &auth.Principal{
				ID:    email,
				Name:  auth.DisplayNameFromEmail(email),
				Email: email,
				Role:  auth.RoleFromEmail(email),
			}, nil
		}
	}

	return nil, store.ErrSessionNotFound
}

// principalFromSession rebuilds the principal persisted on a session row.
func principalFromSession(s *store.Session) *auth.Principal {
	return &auth.Principal{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Role:      auth.Role(s.Role),
		Plan:      s.Plan,
		CreatedAt: s.CreatedAt,
	}
}

// principalFromContext retrieves the authenticated principal from the request context
func principalFromContext(r *http.Request) *auth.Principal {
	principal, _ := r.Context().Value(principalContextKey).(*auth.Principal)
	return principal
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *Admin) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	// Try to get existing token from cookie
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	// Generate new token
	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	// Set cookie
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// csrfExempt reports whether the request carries a Bearer token. Bearer
// auth is not cookie-bound, so cross-site request forgery does not apply.
func csrfExempt(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// validateCSRF checks the CSRF token from form against cookie
func (a *Admin) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// createSession persists a session for a principal and sets the cookie
func (a *Admin) createSession(w http.ResponseWriter, r *http.Request, principal *auth.Principal) error {
	sessionID, err := generateSecureToken(32)
	if err != nil {
		return err
	}

	session := &store.Session{
		ID:        sessionID,
		Email:     principal.Email,
		Name:      principal.Name,
		Role:      string(principal.Role),
		Plan:      principal.Plan,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}

	if err := a.store.CreateSession(r.Context(), session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// handleLoginPage renders the login page
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if _, err := a.principalFromRequest(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	r, csrfToken := a.ensureCSRFToken(w, r)
	a.renderLoginPage(w, "", csrfToken)
}

// handleLogin processes login form submission
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid form data", csrfToken)
		return
	}

	if !a.validateCSRF(r) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid request, please try again", csrfToken)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	if email == "" || password == "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Email and password required", csrfToken)
		return
	}

	principal, err := a.authenticator.Authenticate(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_, csrfToken := a.ensureCSRFToken(w, r)
			a.renderLoginPage(w, "Invalid email or password", csrfToken)
			return
		}
		a.logger.Error("authentication failed", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	if err := a.createSession(w, r, principal); err != nil {
		a.logger.Error("failed to create session", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	a.logger.Info("login successful", "email", email, "role", principal.Role)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout logs out the current principal
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		// Validate CSRF - but don't block logout if invalid (security trade-off)
		if !a.validateCSRF(r) {
			a.logger.Warn("logout request with invalid CSRF token")
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil {
		_ = a.store.DeleteSession(r.Context(), cookie.Value)
	}

	// Clear session cookie
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	// Clear CSRF cookie
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// generateSecureToken returns a hex-encoded random token of n bytes.
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
