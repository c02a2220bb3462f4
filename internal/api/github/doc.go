// Package github resolves releases and searches repositories through the GitHub REST API.
package github
