// Package apiclient is the HTTP client the tikzflow CLI uses to talk to a
// running daemon. Non-2xx replies surface as *StatusError, which unwraps to
// the matching services marker so callers can branch with errors.Is.
package apiclient
