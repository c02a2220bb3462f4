package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

// Rename republishes the executables of repo under a new mapping and records it.
// A nil rename restores the original executable names.
func (e *Engine) Rename(ctx context.Context, repo packages.Repository, rename *packages.Rename) ([]string, error) {
	ctx = logger.WithKV(ctx, "repository", repo.String())

	if _, err := e.lookup(ctx, repo); err != nil {
		return nil, err
	}

	packageDir := e.layout.PackageDir(repo)

	current, err := e.linkNames(ctx, repo)
	if err != nil {
		return nil, err
	}

	if err = e.publisher.Unpublish(ctx, packageDir, current); err != nil {
		return nil, err
	}

	names, err := e.publisher.Publish(ctx, packageDir, rename)
	if err != nil {
		return nil, errors.Join(err, e.restoreLinks(ctx, repo, packageDir))
	}

	if err = e.index.SetRename(ctx, repo, rename); err != nil {
		return nil, err
	}

	if err = e.index.ReplaceLinks(ctx, repo, names); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Renamed executables", "rename", rename.String(), "executables", names)

	return names, nil
}

// restoreLinks republishes repo under its recorded mapping after a failed rename.
func (e *Engine) restoreLinks(ctx context.Context, repo packages.Repository, packageDir string) error {
	record, err := e.index.Get(ctx, repo)
	if err != nil {
		return err
	}

	// Links published before the failure may belong to the new mapping.
	if err = e.publisher.Unpublish(ctx, packageDir, nil); err != nil {
		return err
	}

	names, err := e.publisher.Publish(ctx, packageDir, record.Rename)
	if err != nil {
		return fmt.Errorf("restore links: %w", err)
	}

	return e.index.ReplaceLinks(ctx, repo, names)
}

// Lock excludes repo from updates.
func (e *Engine) Lock(ctx context.Context, repo packages.Repository) error {
	return e.setLock(ctx, repo, true)
}

// Unlock makes repo eligible for updates again.
func (e *Engine) Unlock(ctx context.Context, repo packages.Repository) error {
	return e.setLock(ctx, repo, false)
}

func (e *Engine) setLock(ctx context.Context, repo packages.Repository, locked bool) error {
	if err := e.index.SetLock(ctx, repo, locked); err != nil {
		return fmt.Errorf("%s: %w", repo, err)
	}

	logger.InfoKV(ctx, "Changed lock", "repository", repo.String(), "locked", locked)

	return nil
}

// AllowPrereleases sets whether updates of repo may pick pre-releases.
func (e *Engine) AllowPrereleases(ctx context.Context, repo packages.Repository, allowed bool) error {
	if err := e.index.SetPrereleases(ctx, repo, allowed); err != nil {
		return fmt.Errorf("%s: %w", repo, err)
	}

	logger.InfoKV(ctx, "Changed pre-release policy", "repository", repo.String(), "allowed", allowed)

	return nil
}

// ListInstalled returns every index record ordered by repository.
func (e *Engine) ListInstalled(ctx context.Context) ([]*packages.InstalledPackage, error) {
	return e.index.List(ctx)
}

// ListExecutables returns the published names that resolve into the package
// directory of repo, found by scanning the binaries directory.
func (e *Engine) ListExecutables(ctx context.Context, repo packages.Repository) ([]string, error) {
	installed, err := e.isInstalled(ctx, repo)
	if err != nil {
		return nil, err
	}

	if !installed {
		return nil, fmt.Errorf("%s: %w", repo, packages.ErrNotInstalled)
	}

	return e.publisher.Owned(e.layout.PackageDir(repo))
}
