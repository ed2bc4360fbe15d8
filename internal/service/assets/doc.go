// Package assets regenerates derived artifacts after a self-update.
//
// Configured steps run in order and the first failure stops the rebuild.
// When a self-binary package is configured, the orchestrator is rebuilt
// from the fresh checkout and swapped over the running executable with
// go-update, so the following re-exec runs the new code.
package assets
