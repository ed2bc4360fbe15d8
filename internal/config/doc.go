// Package config loads, validates and saves the orchestrator configuration
// in YAML format.
//
// Validation fills defaults (log and lock locations, systemd restart and
// health commands, grace periods) and rejects incomplete task definitions
// at startup, so a failing task always has an operator message.
package config
