// Package updater keeps the orchestrator's own checkout up to date.
//
// CheckAndApply reads the checkout fingerprint, pulls from the remote and
// reads it again. Only when the fingerprint moved does it run the
// post-update sequence: rebuild derived assets, restart every managed
// service once and reinstall the scheduled-job registry.
package updater
