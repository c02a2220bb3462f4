// Package publisher exposes package executables on PATH through symlinks.
//
// A link in the binaries directory belongs to a package when its target lies
// under that package's directory. Ownership is decided from the link text
// alone, so links can be cleaned up after the package directory is gone.
package publisher
