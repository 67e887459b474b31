// Package server assembles the evobolt process: the sqlite store, the
// remote API client, the instance registry, and the web dashboard, served
// over plain TCP or a tsnet node.
package server
