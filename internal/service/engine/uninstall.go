package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/repository/index"
)

// Uninstall removes every trace of repo: its links, its package directory, the
// author directory when it is left empty, and its index record. A package
// without a record but with a leftover directory is still cleaned up.
func (e *Engine) Uninstall(ctx context.Context, repo packages.Repository) error {
	ctx = logger.WithKV(ctx, "repository", repo.String())

	installed, err := e.isInstalled(ctx, repo)
	if err != nil {
		return err
	}

	if !installed {
		return fmt.Errorf("%s: %w", repo, packages.ErrNotInstalled)
	}

	packageDir := e.layout.PackageDir(repo)

	names, err := e.linkNames(ctx, repo)
	if err != nil {
		return err
	}

	e.warnRunning(ctx, names)

	var errs []error

	if err = e.publisher.Unpublish(ctx, packageDir, names); err != nil {
		errs = append(errs, err)
	}

	if err = removeAll(packageDir); err != nil {
		errs = append(errs, err)
	}

	if err = removeIfEmpty(e.layout.AuthorDir(repo)); err != nil {
		errs = append(errs, err)
	}

	if err = e.index.Delete(ctx, repo); err != nil {
		errs = append(errs, err)
	}

	if err = errors.Join(errs...); err != nil {
		return fmt.Errorf("uninstall %s: %w", repo, err)
	}

	logger.InfoKV(ctx, "Uninstalled package", "executables", names)

	return nil
}

// warnRunning logs the published executables that are still running.
// Removal goes ahead regardless, the running processes keep their open files.
func (e *Engine) warnRunning(ctx context.Context, names []string) {
	if e.probe == nil || len(names) == 0 {
		return
	}

	running, err := e.probe.Running(names)
	if err != nil {
		logger.DebugKV(ctx, "Failed to list running processes", "error", err)
		return
	}

	if len(running) > 0 {
		logger.WarnKV(ctx, "Executables of the package are still running", "executables", running)
	}
}

// lookup returns the index record of repo.
func (e *Engine) lookup(ctx context.Context, repo packages.Repository) (*packages.InstalledPackage, error) {
	if err := e.checkRepository(repo); err != nil {
		return nil, err
	}

	record, err := e.index.Get(ctx, repo)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", repo, packages.ErrNotInstalled)
		}

		return nil, err
	}

	return record, nil
}
