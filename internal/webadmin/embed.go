// ABOUTME: Embedded assets for the dashboard
// ABOUTME: HTML templates and help documentation

package webadmin

import "embed"

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

//go:embed docs/help/*.md
var helpFS embed.FS
