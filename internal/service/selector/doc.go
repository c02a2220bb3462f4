// Package selector picks the release asset that fits the host platform.
//
// Assets are scored by a Strategy: the Automatic heuristic counts occurrences
// of the host OS and architecture in the asset name, while PatternFilter counts
// matches of a user supplied regular expression.
package selector
