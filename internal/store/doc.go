// Package store provides persistence for dashboard sessions and settings.
//
// The SQLite implementation creates its schema on open. Sessions carry the
// authenticated principal across process restarts; the settings blob holds
// the admin-editable remote endpoint and instance limit.
package store
