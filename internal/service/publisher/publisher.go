package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

const (
	// DefaultDirPermissions is used when the binaries directory has to be created.
	DefaultDirPermissions os.FileMode = 0o755

	// executeBits are forced on every published executable.
	executeBits os.FileMode = 0o111
)

// Classifier decides whether a file is a native executable.
type Classifier interface {
	IsExecutable(path string) (bool, error)
}

// Publisher exposes package executables in the binaries directory.
type Publisher struct {
	// binDir receives one symlink per published executable.
	binDir string
	// classifier recognizes executables among the package files.
	classifier Classifier
}

// New creates a publisher for binDir.
func New(binDir string, classifier Classifier) *Publisher {
	return &Publisher{
		binDir:     binDir,
		classifier: classifier,
	}
}

// BinDir returns the directory links are published into.
func (p *Publisher) BinDir() string {
	return p.binDir
}

// Publish links every executable found under packageDir into the binaries directory.
// A file whose base name equals rename.Old is published as rename.New; later files with
// the same published name replace earlier links. Entries not owned by the package are never
// replaced. The sorted published names are returned.
func (p *Publisher) Publish(ctx context.Context, packageDir string, rename *packages.Rename) ([]string, error) {
	root, err := filepath.Abs(packageDir)
	if err != nil {
		return nil, fsError("resolve package directory", err)
	}

	if err = os.MkdirAll(p.binDir, DefaultDirPermissions); err != nil {
		return nil, fsError("create binaries directory", err)
	}

	published := make(map[string]struct{})

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fsError("walk package directory", walkErr)
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		isExecutable, err := p.classifier.IsExecutable(path)
		if err != nil {
			return fsError("classify "+entry.Name(), err)
		}

		if !isExecutable {
			return nil
		}

		name := rename.Apply(entry.Name())
		if err = p.link(ctx, root, path, name); err != nil {
			return err
		}

		published[name] = struct{}{}

		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(published))
	for name := range published {
		names = append(names, name)
	}

	slices.Sort(names)

	return names, nil
}

// link makes file executable and points binDir/name at it.
func (p *Publisher) link(ctx context.Context, root, file, name string) error {
	info, err := os.Stat(file)
	if err != nil {
		return fsError("stat "+file, err)
	}

	if err = os.Chmod(file, info.Mode().Perm()|executeBits); err != nil {
		return fsError("make executable "+file, err)
	}

	linkPath := filepath.Join(p.binDir, name)

	if _, err = os.Lstat(linkPath); err == nil {
		if !p.owns(root, linkPath) {
			return fmt.Errorf("%w: %s already exists and belongs to another package", packages.ErrFilesystem, linkPath)
		}

		if err = os.Remove(linkPath); err != nil {
			return fsError("replace link "+name, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fsError("inspect "+linkPath, err)
	}

	if err = os.Symlink(file, linkPath); err != nil {
		return fsError("link "+name, err)
	}

	logger.DebugKV(ctx, "Published executable", "name", name, "target", file)

	return nil
}

// Unpublish removes the named links owned by the package, then every other link
// in the binaries directory that still points into packageDir.
func (p *Publisher) Unpublish(ctx context.Context, packageDir string, names []string) error {
	root, err := filepath.Abs(packageDir)
	if err != nil {
		return fsError("resolve package directory", err)
	}

	var errs []error

	for _, name := range names {
		linkPath := filepath.Join(p.binDir, name)
		if !p.owns(root, linkPath) {
			continue
		}

		if err = os.Remove(linkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fsError("remove link "+name, err))
			continue
		}

		logger.DebugKV(ctx, "Removed executable link", "name", name)
	}

	remaining, err := p.Owned(root)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	for _, name := range remaining {
		if err = os.Remove(filepath.Join(p.binDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fsError("remove link "+name, err))
			continue
		}

		logger.DebugKV(ctx, "Removed executable link", "name", name)
	}

	return errors.Join(errs...)
}

// Owned returns the sorted names of links in the binaries directory that point into packageDir.
func (p *Publisher) Owned(packageDir string) ([]string, error) {
	root, err := filepath.Abs(packageDir)
	if err != nil {
		return nil, fsError("resolve package directory", err)
	}

	entries, err := os.ReadDir(p.binDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fsError("read binaries directory", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink == 0 {
			continue
		}

		if p.owns(root, filepath.Join(p.binDir, entry.Name())) {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// owns reports whether linkPath is a symlink whose target lies under root.
// The target does not have to exist.
func (p *Publisher) owns(root, linkPath string) bool {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}

	return packages.Within(root, target)
}

func fsError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, packages.ErrFilesystem, err)
}
