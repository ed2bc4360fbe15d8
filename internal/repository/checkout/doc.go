// Package checkout reads and synchronizes the orchestrator's own git checkout.
//
// The commit hash of HEAD is the RepoState fingerprint: the self-updater
// compares it before and after a pull to decide whether anything changed.
package checkout
