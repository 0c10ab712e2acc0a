// Package config loads, normalizes, and validates archivist configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as ARCHIVIST_REDIS_PASSWORD and per-account
// token_env variables. The Config type centralizes every knob the daemon and
// CLI need: recorder supervision, media tooling, workflow delays, publishing
// accounts, and per-room policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
