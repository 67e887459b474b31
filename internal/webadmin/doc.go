// Package webadmin serves the browser dashboard.
//
// It owns sessions (persisted in the store, referenced by an HttpOnly
// cookie), CSRF protection via a double-submit cookie, and the role split
// between the admin and client views. Instance pages drive the registry;
// the pairing pages own per-instance pairing flows and expose the JSON
// state endpoint the browser polls.
package webadmin
