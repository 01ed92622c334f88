// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
//
// The socket carries lifecycle commands only (start, stop, status, template
// reload and process shutdown). Conversion traffic goes through the HTTP API.
package ipc
