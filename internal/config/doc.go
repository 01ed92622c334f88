// Package config loads, normalizes, and validates tikzflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATIKZ_API_KEY and TIKZFLOW_API_TOKEN. The Config type centralizes every
// knob the daemon and CLI need, from upload limits to LaTeX engine choice.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
