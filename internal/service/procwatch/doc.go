// Package procwatch tells which published executables are currently running.
package procwatch
