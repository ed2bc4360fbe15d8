// Package version exposes build metadata for the upkeep binary.
//
// Version, Commit and BuildTime are injected at build time via ldflags
// (see the build tasks) and default to values suitable for local builds.
package version
