// Package classifier sniffs file contents to recognize native executables.
package classifier
