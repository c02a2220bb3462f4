package packages

import (
	"errors"
	"strings"
)

var (
	// ErrResolution is returned when no eligible release can be resolved.
	ErrResolution = errors.New("release resolution failed")
	// ErrSelection is returned when no release asset fits the host or filter.
	ErrSelection = errors.New("no matching release asset")
	// ErrTransfer is returned when downloading a payload fails.
	ErrTransfer = errors.New("transfer failed")
	// ErrArchive is returned when an archive is malformed or unsafe.
	ErrArchive = errors.New("malformed archive")
	// ErrFilesystem is returned when a disk operation fails.
	ErrFilesystem = errors.New("filesystem operation failed")
	// ErrIndex is returned when the package index cannot be read or written.
	ErrIndex = errors.New("package index failure")
	// ErrNotInstalled is returned when an operation targets an unknown package.
	ErrNotInstalled = errors.New("package is not installed")
	// ErrAlreadyInstalled is returned when installing a package that is present.
	ErrAlreadyInstalled = errors.New("package is already installed")
	// ErrInvalidRepository is returned for identifiers that are not author/name.
	ErrInvalidRepository = errors.New("invalid repository identifier")
	// ErrInvalidRename is returned for rename mappings that are not old/new.
	ErrInvalidRename = errors.New("invalid rename mapping")
)

// SelectionError reports that no asset could be selected and lists the
// asset names that were considered.
type SelectionError struct {
	// Candidates are the asset names of the release in upstream order.
	Candidates []string
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	if len(e.Candidates) == 0 {
		return ErrSelection.Error() + ": release has no assets"
	}

	return ErrSelection.Error() + ", candidates: " + strings.Join(e.Candidates, ", ")
}

// Is makes errors.Is(err, ErrSelection) hold for every SelectionError.
func (e *SelectionError) Is(target error) bool {
	return target == ErrSelection
}
