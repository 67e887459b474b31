// ABOUTME: Principal model and the pluggable authentication port
// ABOUTME: Ships the demo verifier: fixed password via bcrypt, role derived from email

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Role selects which dashboard view a principal gets.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// ErrInvalidCredentials is returned for any failed login. Callers never
// learn whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Principal is the authenticated identity driving view selection.
type Principal struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Plan      string
	CreatedAt time.Time
}

// IsAdmin reports whether the principal gets the admin view.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Authenticator is the authentication port. A production deployment
// replaces the demo implementation with a real credential verifier behind
// the same interface.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Principal, error)
}

// DemoAuthenticator accepts any email with one fixed password. The password
// is bcrypt-hashed once at construction so the verification path has the
// same shape a real verifier would.
//
// Not for production use: the role comes from the email string, not from
// any server-verified claim.
type DemoAuthenticator struct {
	passwordHash []byte
}

// NewDemoAuthenticator creates the demo verifier for the given fixed password.
func NewDemoAuthenticator(password string) (*DemoAuthenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &DemoAuthenticator{passwordHash: hash}, nil
}

// Authenticate verifies the fixed password and derives a principal from the
// email.
func (a *DemoAuthenticator) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		ID:        uuid.NewString(),
		Name:      DisplayNameFromEmail(email),
		Email:     email,
		Role:      RoleFromEmail(email),
		Plan:      "premium",
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RoleFromEmail derives the role the demo model assigns: emails containing
// "admin" get the admin view, everything else is a client.
func RoleFromEmail(email string) Role {
	if strings.Contains(email, "admin") {
		return RoleAdmin
	}
	return RoleClient
}

// DisplayNameFromEmail derives a display name from the email local part,
// capitalized.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return strings.ToUpper(local[:1]) + local[1:]
}
