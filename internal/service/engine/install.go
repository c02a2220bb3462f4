package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/service/selector"
)

// packageDirPermissions is used for package and author directories.
const packageDirPermissions os.FileMode = 0o755

// Install resolves the release of repo that matches prefs and installs it.
// It fails with packages.ErrAlreadyInstalled when repo has an index record or a
// package directory.
func (e *Engine) Install(
	ctx context.Context,
	repo packages.Repository,
	prefs *packages.Preferences,
) (*packages.InstalledPackage, error) {
	installed, err := e.isInstalled(ctx, repo)
	if err != nil {
		return nil, err
	}

	if installed {
		return nil, fmt.Errorf("%s: %w", repo, packages.ErrAlreadyInstalled)
	}

	release, err := e.FetchRelease(ctx, repo, prefs)
	if err != nil {
		return nil, err
	}

	return e.InstallRelease(ctx, repo, release, prefs)
}

// InstallRelease installs a resolved release. Either every effect is applied
// (package directory populated, record committed, executables linked) or none is.
func (e *Engine) InstallRelease(
	ctx context.Context,
	repo packages.Repository,
	release *packages.Release,
	prefs *packages.Preferences,
) (*packages.InstalledPackage, error) {
	ctx = logger.WithKV(ctx, "repository", repo.String())

	if err := e.checkRepository(repo); err != nil {
		return nil, err
	}

	if len(release.Assets) == 0 {
		return nil, fmt.Errorf("%s %s: %w", repo, release.Tag, &packages.SelectionError{})
	}

	asset, err := selector.Select(release.Assets, selector.For(e.host, prefs.AssetFilter))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", repo, release.Tag, err)
	}

	logger.InfoKV(ctx, "Installing release", "tag", release.Tag, "asset", asset.Name)

	packageDir := e.layout.PackageDir(repo)

	guard := e.newRollbackGuard(repo)
	defer guard.Release(ctx)

	if err = os.MkdirAll(packageDir, packageDirPermissions); err != nil {
		return nil, fsError("create package directory", err)
	}

	if err = e.fetch(ctx, asset, packageDir); err != nil {
		return nil, err
	}

	record := prefs.Record(repo, release.Tag)
	if err = e.index.Put(ctx, record); err != nil {
		return nil, err
	}

	names, err := e.publisher.Publish(ctx, packageDir, prefs.Rename)
	if err != nil {
		return nil, err
	}

	if err = e.index.ReplaceLinks(ctx, repo, names); err != nil {
		return nil, err
	}

	guard.Commit()

	if len(names) == 0 {
		logger.WarnKV(ctx, "Release contains no executables", "tag", release.Tag)
	}

	logger.InfoKV(ctx, "Installed release", "tag", release.Tag, "executables", names)

	return record, nil
}

// fetch streams asset into packageDir.
func (e *Engine) fetch(ctx context.Context, asset *packages.ReleaseAsset, packageDir string) error {
	payload, err := e.downloader.Open(ctx, asset.URL)
	if err != nil {
		return err
	}

	defer func() {
		_ = payload.Close()
	}()

	return e.extractor.Extract(ctx, payload, asset.Name, packageDir)
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fsError("remove "+path, err)
	}

	return nil
}
