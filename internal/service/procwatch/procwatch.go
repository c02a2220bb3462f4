package procwatch

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/mitchellh/go-ps"
)

// Lister returns the processes running on the host.
type Lister func() ([]ps.Process, error)

// Probe reports which executables are currently running.
type Probe struct {
	list Lister
	self int
}

// New creates a probe backed by the process table of the host.
func New() *Probe {
	return NewWithLister(ps.Processes)
}

// NewWithLister creates a probe reading processes from list.
func NewWithLister(list Lister) *Probe {
	return &Probe{
		list: list,
		self: os.Getpid(),
	}
}

// Running returns the sorted subset of names that match a running process.
// The current process is never reported.
func (p *Probe) Running(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	wanted := make(map[string]string, len(names))
	for _, name := range names {
		wanted[normalize(name)] = name
	}

	processes, err := p.list()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	found := make(map[string]struct{})

	for _, process := range processes {
		if process.Pid() == p.self {
			continue
		}

		if name, ok := wanted[normalize(process.Executable())]; ok {
			found[name] = struct{}{}
		}
	}

	result := make([]string, 0, len(found))
	for name := range found {
		result = append(result, name)
	}

	slices.Sort(result)

	return result, nil
}

// normalize drops the .exe suffix on Windows where process names carry it.
func normalize(name string) string {
	if runtime.GOOS == "windows" {
		return strings.TrimSuffix(strings.ToLower(name), ".exe")
	}

	return name
}
