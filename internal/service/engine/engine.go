package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/repository/index"
	"github.com/oshokin/dyst/internal/service/selector"
)

// ReleaseResolver lists the releases of a repository, newest first.
type ReleaseResolver interface {
	Releases(ctx context.Context, repo packages.Repository) ([]packages.Release, error)
}

// Downloader opens the payload behind an asset URL.
type Downloader interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Extractor unpacks a payload into a directory.
type Extractor interface {
	Extract(ctx context.Context, src io.Reader, hint, outDir string) error
}

// Publisher exposes package executables in the binaries directory.
type Publisher interface {
	Publish(ctx context.Context, packageDir string, rename *packages.Rename) ([]string, error)
	Unpublish(ctx context.Context, packageDir string, names []string) error
	Owned(packageDir string) ([]string, error)
}

// ProcessProbe reports which executables are running.
type ProcessProbe interface {
	Running(names []string) ([]string, error)
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	// Layout locates package directories and the binaries directory.
	Layout packages.Layout
	// Host is the platform assets are selected for.
	Host selector.Host
	// Index persists installed packages.
	Index index.Repository
	// Resolver lists releases.
	Resolver ReleaseResolver
	// Downloader fetches assets.
	Downloader Downloader
	// Extractor unpacks assets.
	Extractor Extractor
	// Publisher links executables.
	Publisher Publisher
	// Probe is optional; without it no running-process warnings are emitted.
	Probe ProcessProbe
}

// Engine drives the package lifecycle: install, rename, uninstall and update.
// It runs one command at a time and does not lock the index against other processes.
type Engine struct {
	layout     packages.Layout
	host       selector.Host
	index      index.Repository
	resolver   ReleaseResolver
	downloader Downloader
	extractor  Extractor
	publisher  Publisher
	probe      ProcessProbe
}

// New creates an engine from its collaborators.
func New(deps *Dependencies) *Engine {
	return &Engine{
		layout:     deps.Layout,
		host:       deps.Host,
		index:      deps.Index,
		resolver:   deps.Resolver,
		downloader: deps.Downloader,
		extractor:  deps.Extractor,
		publisher:  deps.Publisher,
		probe:      deps.Probe,
	}
}

// Layout returns the directories the engine manages.
func (e *Engine) Layout() packages.Layout {
	return e.layout
}

// checkRepository rejects identifiers whose package directory would not lie
// strictly inside the package store.
func (e *Engine) checkRepository(repo packages.Repository) error {
	if err := repo.Validate(); err != nil {
		return err
	}

	if !e.layout.Contains(repo) {
		return fmt.Errorf("%w: %s resolves outside the package store", packages.ErrInvalidRepository, repo)
	}

	return nil
}

// isInstalled reports whether repo has an index record or a package directory.
func (e *Engine) isInstalled(ctx context.Context, repo packages.Repository) (bool, error) {
	if err := e.checkRepository(repo); err != nil {
		return false, err
	}

	_, err := e.index.Get(ctx, repo)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, index.ErrNotFound) {
		return false, err
	}

	return dirExists(e.layout.PackageDir(repo))
}

// linkNames returns the link manifest of repo, scanning the binaries directory
// when the manifest is empty.
func (e *Engine) linkNames(ctx context.Context, repo packages.Repository) ([]string, error) {
	names, err := e.index.Links(ctx, repo)
	if err != nil {
		return nil, err
	}

	if len(names) > 0 {
		return names, nil
	}

	return e.publisher.Owned(e.layout.PackageDir(repo))
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.IsDir(), nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, fsError("inspect "+path, err)
}

// removeIfEmpty deletes dir when it has no entries left.
func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fsError("read "+dir, err)
	}

	if len(entries) > 0 {
		return nil
	}

	if err = os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fsError("remove "+dir, err)
	}

	return nil
}

func fsError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, packages.ErrFilesystem, err)
}
