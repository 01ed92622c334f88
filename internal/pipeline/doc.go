// Package pipeline runs conversion jobs.
//
// The Orchestrator accepts a submission for an uploaded image, records the
// job in the registry and finishes it in the background: conversion, then a
// best-effort preview render, then one terminal registry update. Each run is
// bound to the generation its submission created, so a newer submission for
// the same image supersedes older runs without being overwritten by them.
//
// Export and direct render requests are served synchronously on top of the
// same providers.
package pipeline
