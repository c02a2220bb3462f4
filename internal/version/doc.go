// Package version exposes build metadata for dyst.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds.
// Helpers render the version for CLI output, the HTTP User-Agent and self update checks.
package version
