// Package selfupdate replaces the running dyst executable with the newest
// stable release of its own repository.
package selfupdate
