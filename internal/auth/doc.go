// Package auth provides the authentication port and the demo verifier.
//
// The demo model is explicitly not production auth: one fixed password
// accepts any email, and the role comes from whether the email contains
// "admin". The Authenticator interface is the seam where a real credential
// verifier slots in. JWTVerifier issues and checks HS256 bearer tokens for
// the JSON API surface.
package auth
