// Package app loads the configuration and wires the dyst services together
// for one command invocation.
package app
