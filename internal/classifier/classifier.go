package classifier

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// executableTypes are the MIME types of native executable formats.
//
//nolint:gochecknoglobals // Read-only lookup table.
var executableTypes = []string{
	"application/x-elf",
	"application/x-mach-binary",
	"application/vnd.microsoft.portable-executable",
}

// Classifier decides whether a file is a native executable by sniffing its content.
type Classifier struct{}

// New creates a content-based classifier.
func New() *Classifier {
	return &Classifier{}
}

// IsExecutable reports whether the file at path is an ELF, Mach-O or PE binary.
// Subtypes such as ELF shared objects count through their parent type.
func (c *Classifier) IsExecutable(path string) (bool, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return false, fmt.Errorf("detect file type: %w", err)
	}

	for mime := detected; mime != nil; mime = mime.Parent() {
		for _, executable := range executableTypes {
			if mime.Is(executable) {
				return true, nil
			}
		}
	}

	return false, nil
}
