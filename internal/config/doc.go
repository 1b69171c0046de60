// Package config loads, normalizes, and validates prism configuration from
// TOML files, providing repository defaults when no file exists.
package config
