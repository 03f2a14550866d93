// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets (database password, Redis password) are expected to come from the
// environment, optionally seeded from a .env file by the binaries.
package config
