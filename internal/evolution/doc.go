// Package evolution provides a thin client for the remote Evolution
// instance-management API.
//
// Every operation maps 1:1 to a remote endpoint and is authenticated by a
// static apikey header. There is no retry, caching, or circuit breaking;
// any non-2xx response surfaces as a single *APIError carrying the HTTP
// status. Callers own all policy around failures.
package evolution
