// ABOUTME: Help page handler rendering embedded markdown docs
// ABOUTME: Serves the device connection walkthrough

package webadmin

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
)

// handleConnectHelp renders the connection walkthrough from the embedded
// markdown source.
func (a *Admin) handleConnectHelp(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r)
	r, csrfToken := a.ensureCSRFToken(w, r)

	source, err := helpFS.ReadFile("docs/help/connect.md")
	if err != nil {
		a.logger.Error("reading help doc failed", "error", err)
		http.Error(w, "help unavailable", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(source, &buf); err != nil {
		a.logger.Error("rendering help doc failed", "error", err)
		http.Error(w, "help unavailable", http.StatusInternalServerError)
		return
	}

	a.renderHelpPage(w, helpPageData{
		Title:     "Connecting a device",
		User:      principal,
		CSRFToken: csrfToken,
		Content:   template.HTML(buf.String()),
	})
}
