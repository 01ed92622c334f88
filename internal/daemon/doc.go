// Package daemon coordinates the long-running tikzflow process and its HTTP
// surface.
//
// It wires configuration, the job registry, the image store, the template
// catalog, and the conversion pipeline into a single lifecycle with
// flock-based locking to prevent multiple instances. The HTTP API is routed
// with gorilla/mux; every /api route sits behind the optional bearer token,
// except the static artifact routes that browsers load directly.
//
// Keep orchestration logic here: conversion steps live in the pipeline and
// provider packages while the daemon focuses on startup, shutdown, and
// request handling.
package daemon
