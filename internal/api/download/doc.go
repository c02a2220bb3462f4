// Package download fetches release assets over HTTP.
//
// Client.Open retries transient failures with exponential backoff, checks the
// free space of the scratch filesystem before streaming and classifies every
// failure as a transfer or filesystem error.
package download
