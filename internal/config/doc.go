// Package config defines the settings used by dyst and provides helpers to
// load, validate and save them in YAML format.
//
// Defaults follow the XDG base directory specification: packages live under
// $XDG_DATA_HOME/dyst and executables are linked into $XDG_BIN_HOME. The
// DYST_PACKAGE_STORE, DYST_BINARIES_PATH and GITHUB_TOKEN environment
// variables take precedence over the file.
package config
