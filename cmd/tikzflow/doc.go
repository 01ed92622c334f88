// Package main hosts the tikzflow CLI entrypoint and command graph.
//
// Lifecycle commands (start, stop, restart, status, templates reload) talk to
// the daemon over its IPC socket. Conversion commands (upload, convert, job,
// jobs, export, report, render, templates) call the daemon's HTTP API through
// internal/apiclient, so they behave exactly like any other API consumer.
// The config, logs and notify-test commands work without a running daemon.
//
// Add behavior to the internal packages first and surface it here through a
// command or flag.
package main
