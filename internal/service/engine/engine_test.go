package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/repository/index"
	"github.com/oshokin/dyst/internal/service/extractor"
	"github.com/oshokin/dyst/internal/service/publisher"
	"github.com/oshokin/dyst/internal/service/selector"
)

const linuxAsset = "tool-linux-x86_64"

var (
	toolRepo  = packages.Repository{Author: "acme", Name: "tool"}
	otherRepo = packages.Repository{Author: "acme", Name: "other"}
)

// prefixClassifier treats files starting with "EXE" as executables.
type prefixClassifier struct{}

func (prefixClassifier) IsExecutable(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	return bytes.HasPrefix(data, []byte("EXE")), nil
}

type fakeResolver struct {
	mu       sync.Mutex
	releases map[string][]packages.Release
}

func (f *fakeResolver) Releases(_ context.Context, repo packages.Repository) ([]packages.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	releases, ok := f.releases[repo.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s could not be fetched", packages.ErrResolution, repo)
	}

	return releases, nil
}

func (f *fakeResolver) set(repo packages.Repository, releases ...packages.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.releases[repo.String()] = releases
}

type fakeDownloader struct {
	mu       sync.Mutex
	payloads map[string]string
	opened   int
}

func (f *fakeDownloader) Open(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s returned 404", packages.ErrTransfer, url)
	}

	f.opened++

	return io.NopCloser(strings.NewReader(payload)), nil
}

func (f *fakeDownloader) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.opened
}

// brokenExtractor writes a partial file and then fails like a corrupt archive.
type brokenExtractor struct{}

func (brokenExtractor) Extract(_ context.Context, _ io.Reader, _, outDir string) error {
	if err := os.WriteFile(filepath.Join(outDir, "partial"), []byte("EXE partial"), 0o644); err != nil {
		return err
	}

	return fmt.Errorf("%w: unexpected end of archive", packages.ErrArchive)
}

type fakeProbe struct {
	running []string
}

func (f fakeProbe) Running(names []string) ([]string, error) {
	var result []string

	for _, name := range names {
		for _, running := range f.running {
			if name == running {
				result = append(result, name)
			}
		}
	}

	return result, nil
}

// failingIndex fails to record the link manifest after the package was published.
type failingIndex struct {
	*index.Store
}

func (failingIndex) ReplaceLinks(context.Context, packages.Repository, []string) error {
	return fmt.Errorf("replace links: %w: disk I/O error", packages.ErrIndex)
}

type fixture struct {
	engine     *Engine
	layout     packages.Layout
	store      *index.Store
	resolver   *fakeResolver
	downloader *fakeDownloader
}

type fixtureOption func(deps *Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	root := t.TempDir()
	layout := packages.Layout{
		PackageStore: filepath.Join(root, "packages"),
		BinDir:       filepath.Join(root, "bin"),
	}

	store, err := index.Open(context.Background(), filepath.Join(layout.PackageStore, index.DefaultFilename))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	f := &fixture{
		layout:     layout,
		store:      store,
		resolver:   &fakeResolver{releases: make(map[string][]packages.Release)},
		downloader: &fakeDownloader{payloads: make(map[string]string)},
	}

	deps := &Dependencies{
		Layout:     layout,
		Host:       selector.Host{OS: "linux", Arch: "x86_64"},
		Index:      store,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Extractor:  extractor.New(root),
		Publisher:  publisher.New(layout.BinDir, prefixClassifier{}),
	}

	for _, opt := range opts {
		opt(deps)
	}

	f.engine = New(deps)

	return f
}

// release registers a release of repo whose linux asset contains an executable.
func (f *fixture) release(repo packages.Repository, tag string, prerelease bool) packages.Release {
	linuxURL := fmt.Sprintf("https://dl/%s/%s/%s", repo, tag, linuxAsset)
	darwinURL := fmt.Sprintf("https://dl/%s/%s/tool-darwin-aarch64", repo, tag)

	f.downloader.mu.Lock()
	f.downloader.payloads[linuxURL] = "EXE " + repo.String() + " " + tag
	f.downloader.payloads[darwinURL] = "EXE darwin"
	f.downloader.mu.Unlock()

	return packages.Release{
		Tag:        tag,
		Prerelease: prerelease,
		Assets: []packages.ReleaseAsset{
			{Name: "tool-darwin-aarch64", URL: darwinURL},
			{Name: linuxAsset, URL: linuxURL},
		},
	}
}

func (f *fixture) linkPath(name string) string {
	return filepath.Join(f.layout.BinDir, name)
}

func (f *fixture) requireGone(t *testing.T, repo packages.Repository) {
	t.Helper()

	require.NoDirExists(t, f.layout.PackageDir(repo))
	require.NoDirExists(t, f.layout.AuthorDir(repo))

	_, err := f.store.Get(context.Background(), repo)
	require.ErrorIs(t, err, index.ErrNotFound)

	links, err := f.store.Links(context.Background(), repo)
	require.NoError(t, err)
	require.Empty(t, links)
}

func observed(level zapcore.Level) (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(level)

	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

// TestResolveRelease verifies the release policy.
func TestResolveRelease(t *testing.T) {
	t.Parallel()

	releases := []packages.Release{
		{Tag: "v2.0.0-rc1", Prerelease: true},
		{Tag: "v1.1.0"},
		{Tag: "v1.0.0"},
	}

	tests := []struct {
		name     string
		releases []packages.Release
		prefs    packages.Preferences
		want     string
		wantErr  bool
	}{
		{name: "newest stable", releases: releases, want: "v1.1.0"},
		{name: "pre-releases allowed", releases: releases, prefs: packages.Preferences{AllowPrereleases: true}, want: "v2.0.0-rc1"},
		{name: "pinned tag", releases: releases, prefs: packages.Preferences{Tag: "v1.0.0"}, want: "v1.0.0"},
		{name: "pinned pre-release", releases: releases, prefs: packages.Preferences{Tag: "v2.0.0-rc1"}, want: "v2.0.0-rc1"},
		{name: "pinned tag missing", releases: releases, prefs: packages.Preferences{Tag: "v9"}, wantErr: true},
		{name: "only pre-releases", releases: releases[:1], wantErr: true},
		{name: "no releases", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			release, err := ResolveRelease(tt.releases, &tt.prefs)
			if tt.wantErr {
				require.ErrorIs(t, err, packages.ErrResolution)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, release.Tag)
		})
	}
}

// TestInstallUninstallRoundTrip verifies uninstall removes everything install created.
func TestInstallUninstallRoundTrip(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	record, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", record.Tag)

	target, err := os.Readlink(f.linkPath(linuxAsset))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(f.layout.PackageDir(toolRepo), linuxAsset), target)

	stored, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, record, stored)

	executables, err := f.engine.ListExecutables(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, []string{linuxAsset}, executables)

	_, err = f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrAlreadyInstalled)

	require.NoError(t, f.engine.Uninstall(ctx, toolRepo))

	f.requireGone(t, toolRepo)
	require.NoFileExists(t, f.linkPath(linuxAsset))

	err = f.engine.Uninstall(ctx, toolRepo)
	require.ErrorIs(t, err, packages.ErrNotInstalled)
}

// TestInstallKeepsAuthorDirectoryOfSiblings verifies a shared author directory survives uninstall.
func TestInstallKeepsAuthorDirectoryOfSiblings(t *testing.T) {
	t.Parallel()

	var (
		f     = newFixture(t)
		ctx   = context.Background()
		prefs = &packages.Preferences{Rename: &packages.Rename{Old: linuxAsset, New: "other"}}
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))
	f.resolver.set(otherRepo, f.release(otherRepo, "v3.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	_, err = f.engine.Install(ctx, otherRepo, prefs)
	require.NoError(t, err)

	require.NoError(t, f.engine.Uninstall(ctx, toolRepo))

	require.DirExists(t, f.layout.PackageDir(otherRepo))
	require.FileExists(t, f.linkPath("other"))

	installed, err := f.engine.ListInstalled(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	require.Equal(t, otherRepo, installed[0].Repository)
}

// TestInstallRollsBackOnExtractionFailure verifies a failed extraction leaves no trace.
func TestInstallRollsBackOnExtractionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(deps *Dependencies) {
		deps.Extractor = brokenExtractor{}
	})

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	ctx, logs := observed(zapcore.WarnLevel)

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrArchive)

	f.requireGone(t, toolRepo)
	require.NoFileExists(t, f.linkPath("partial"))

	rollbacks := logs.FilterMessage("Rolling back installation").All()
	require.Len(t, rollbacks, 1)

	id, ok := rollbacks[0].ContextMap()["transaction"].(string)
	require.True(t, ok)
	require.NoError(t, uuid.Validate(id))
}

// TestInstallRollsBackOnTransferFailure verifies a failed download leaves no trace.
func TestInstallRollsBackOnTransferFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.resolver.set(toolRepo, packages.Release{
		Tag:    "v1.0.0",
		Assets: []packages.ReleaseAsset{{Name: linuxAsset, URL: "https://dl/missing"}},
	})

	_, err := f.engine.Install(context.Background(), toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrTransfer)

	f.requireGone(t, toolRepo)
}

// TestInstallRollsBackOnIndexFailure verifies links published before an index failure are removed.
func TestInstallRollsBackOnIndexFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(deps *Dependencies) {
		deps.Index = failingIndex{Store: deps.Index.(*index.Store)} //nolint:forcetypeassert // The fixture always uses a store.
	})

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(context.Background(), toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrIndex)

	f.requireGone(t, toolRepo)
	require.NoFileExists(t, f.linkPath(linuxAsset))
}

// TestInstallRefusesForeignBinary verifies a foreign file in the binaries directory aborts the install.
func TestInstallRefusesForeignBinary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	require.NoError(t, os.MkdirAll(f.layout.BinDir, 0o755))
	require.NoError(t, os.WriteFile(f.linkPath(linuxAsset), []byte("mine"), 0o755))

	_, err := f.engine.Install(context.Background(), toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrFilesystem)

	f.requireGone(t, toolRepo)

	data, err := os.ReadFile(f.linkPath(linuxAsset))
	require.NoError(t, err)
	require.Equal(t, "mine", string(data))
}

// TestInstallSelectionFailures verifies selection errors carry the candidates and create nothing.
func TestInstallSelectionFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.resolver.set(toolRepo, packages.Release{Tag: "v1.0.0"})

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrSelection)
	f.requireGone(t, toolRepo)

	f.resolver.set(toolRepo, packages.Release{
		Tag:    "v1.0.0",
		Assets: []packages.ReleaseAsset{{Name: "checksums.txt"}, {Name: "tool-windows.zip"}},
	})

	_, err = f.engine.Install(ctx, toolRepo, &packages.Preferences{})

	var selectionErr *packages.SelectionError
	require.ErrorAs(t, err, &selectionErr)
	require.Equal(t, []string{"checksums.txt", "tool-windows.zip"}, selectionErr.Candidates)
	f.requireGone(t, toolRepo)
}

// TestInstallPinnedTagAndPrereleases verifies pinned tags and the pre-release preference.
func TestInstallPinnedTagAndPrereleases(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo,
		f.release(toolRepo, "v2.0.0-rc1", true),
		f.release(toolRepo, "v1.1.0", false),
		f.release(toolRepo, "v1.0.0", false),
	)

	record, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{Tag: "v1.0.0"})
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", record.Tag)

	require.NoError(t, f.engine.Uninstall(ctx, toolRepo))

	record, err = f.engine.Install(ctx, toolRepo, &packages.Preferences{AllowPrereleases: true})
	require.NoError(t, err)
	require.Equal(t, "v2.0.0-rc1", record.Tag)
	require.True(t, record.AllowPrereleases)

	_, err = f.engine.Install(ctx, otherRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrResolution)
}

// TestUpdateAll verifies outdated packages are reinstalled and a second run changes nothing.
func TestUpdateAll(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{Tag: "v1.0.0"})
	require.NoError(t, err)

	f.resolver.set(toolRepo,
		f.release(toolRepo, "v1.1.0-rc1", true),
		f.release(toolRepo, "v1.0.1", false),
		f.release(toolRepo, "v1.0.0", false),
	)

	report, err := f.engine.UpdateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []UpdateResult{{
		Repository: toolRepo,
		Outcome:    OutcomeUpdated,
		From:       "v1.0.0",
		To:         "v1.0.1",
	}}, report.Results)

	record, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, "v1.0.1", record.Tag)

	data, err := os.ReadFile(f.linkPath(linuxAsset))
	require.NoError(t, err)
	require.Equal(t, "EXE acme/tool v1.0.1", string(data))

	opens := f.downloader.opens()

	report, err = f.engine.UpdateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Count(OutcomeUpToDate))
	require.Equal(t, opens, f.downloader.opens())

	again, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, record, again)
}

// TestUpdateSkipsLocked verifies locked packages are left alone with a warning.
func TestUpdateSkipsLocked(t *testing.T) {
	t.Parallel()

	var (
		f         = newFixture(t)
		ctx, logs = observed(zapcore.WarnLevel)
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{Lock: true})
	require.NoError(t, err)

	f.resolver.set(toolRepo, f.release(toolRepo, "v2.0.0", false))

	report, err := f.engine.UpdateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Count(OutcomeSkippedLocked))

	record, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", record.Tag)

	warnings := logs.FilterMessage("Package is locked and will not be updated").All()
	require.Len(t, warnings, 1)
	require.Equal(t, toolRepo.String(), warnings[0].ContextMap()["repository"])

	require.NoError(t, f.engine.Unlock(ctx, toolRepo))

	report, err = f.engine.Update(ctx, []packages.Repository{toolRepo})
	require.NoError(t, err)
	require.Equal(t, 1, report.Count(OutcomeUpdated))
}

// TestUpdateContinuesAfterFailure verifies one failing package does not stop the others.
func TestUpdateContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))
	f.resolver.set(otherRepo, f.release(otherRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	_, err = f.engine.Install(ctx, otherRepo, &packages.Preferences{
		Rename: &packages.Rename{Old: linuxAsset, New: "other"},
	})
	require.NoError(t, err)

	f.resolver.mu.Lock()
	delete(f.resolver.releases, otherRepo.String())
	f.resolver.mu.Unlock()

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.2.0", false))

	report, err := f.engine.UpdateAll(ctx)
	require.ErrorIs(t, err, packages.ErrResolution)
	require.Len(t, report.Results, 2)

	// Results follow the index order.
	require.Equal(t, otherRepo, report.Results[0].Repository)
	require.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	require.Equal(t, toolRepo, report.Results[1].Repository)
	require.Equal(t, OutcomeUpdated, report.Results[1].Outcome)

	// The failing package keeps its installation.
	require.FileExists(t, f.linkPath("other"))

	_, err = f.engine.Update(ctx, []packages.Repository{{Author: "no", Name: "such"}})
	require.ErrorIs(t, err, packages.ErrNotInstalled)
}

// TestRename verifies executables are republished under the new name and the mapping is recorded.
func TestRename(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	rename := &packages.Rename{Old: linuxAsset, New: "tool"}

	names, err := f.engine.Rename(ctx, toolRepo, rename)
	require.NoError(t, err)
	require.Equal(t, []string{"tool"}, names)

	require.FileExists(t, f.linkPath("tool"))
	require.NoFileExists(t, f.linkPath(linuxAsset))

	record, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, rename, record.Rename)

	links, err := f.store.Links(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, []string{"tool"}, links)

	_, err = f.engine.Rename(ctx, otherRepo, rename)
	require.ErrorIs(t, err, packages.ErrNotInstalled)

	require.NoError(t, f.engine.Uninstall(ctx, toolRepo))
	require.NoFileExists(t, f.linkPath("tool"))
}

// TestRenameConflictRestoresLinks verifies a rename onto a foreign file keeps the old links.
func TestRenameConflictRestoresLinks(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(f.linkPath("taken"), []byte("mine"), 0o755))

	_, err = f.engine.Rename(ctx, toolRepo, &packages.Rename{Old: linuxAsset, New: "taken"})
	require.ErrorIs(t, err, packages.ErrFilesystem)

	require.FileExists(t, f.linkPath(linuxAsset))

	record, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Nil(t, record.Rename)
}

// TestFlags verifies lock and pre-release flags are persisted and require an installed package.
func TestFlags(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	require.ErrorIs(t, f.engine.Lock(ctx, toolRepo), packages.ErrNotInstalled)
	require.ErrorIs(t, f.engine.AllowPrereleases(ctx, toolRepo, true), packages.ErrNotInstalled)

	_, err := f.engine.ListExecutables(ctx, toolRepo)
	require.ErrorIs(t, err, packages.ErrNotInstalled)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err = f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	require.NoError(t, f.engine.Lock(ctx, toolRepo))
	require.NoError(t, f.engine.AllowPrereleases(ctx, toolRepo, true))

	record, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.True(t, record.Locked)
	require.True(t, record.AllowPrereleases)

	require.NoError(t, f.engine.Unlock(ctx, toolRepo))

	record, err = f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.False(t, record.Locked)
}

// TestUninstallLeftoverDirectory verifies a package directory without a record is still removed.
func TestUninstallLeftoverDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	packageDir := f.layout.PackageDir(toolRepo)
	require.NoError(t, os.MkdirAll(packageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(packageDir, "leftover"), []byte("data"), 0o644))

	_, err := f.engine.Install(context.Background(), toolRepo, &packages.Preferences{})
	require.ErrorIs(t, err, packages.ErrAlreadyInstalled)

	require.NoError(t, f.engine.Uninstall(context.Background(), toolRepo))
	f.requireGone(t, toolRepo)
}

// TestRejectsRepositoriesOutsideStore verifies dot segments never reach the filesystem.
func TestRejectsRepositoriesOutsideStore(t *testing.T) {
	t.Parallel()

	var (
		f   = newFixture(t)
		ctx = context.Background()
	)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	for _, repo := range []packages.Repository{
		{Author: toolRepo.Author, Name: ".."},
		{Author: "..", Name: ".."},
		{Author: ".", Name: toolRepo.Name},
		{Author: "..", Name: "escaped"},
	} {
		require.ErrorIs(t, f.engine.Uninstall(ctx, repo), packages.ErrInvalidRepository, repo.String())

		_, err = f.engine.Install(ctx, repo, &packages.Preferences{})
		require.ErrorIs(t, err, packages.ErrInvalidRepository, repo.String())

		_, err = f.engine.InstallRelease(ctx, repo, &packages.Release{Tag: "v1"}, &packages.Preferences{})
		require.ErrorIs(t, err, packages.ErrInvalidRepository, repo.String())

		_, err = f.engine.Rename(ctx, repo, nil)
		require.ErrorIs(t, err, packages.ErrInvalidRepository, repo.String())

		_, err = f.engine.ListExecutables(ctx, repo)
		require.ErrorIs(t, err, packages.ErrInvalidRepository, repo.String())
	}

	require.DirExists(t, f.layout.PackageDir(toolRepo))
	require.FileExists(t, filepath.Join(f.layout.PackageStore, index.DefaultFilename))
	require.NoDirExists(t, filepath.Join(filepath.Dir(f.layout.PackageStore), "escaped"))

	stored, err := f.store.Get(ctx, toolRepo)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", stored.Tag)
}

// TestUninstallWarnsAboutRunningExecutables verifies running executables are reported but removed.
func TestUninstallWarnsAboutRunningExecutables(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(deps *Dependencies) {
		deps.Probe = fakeProbe{running: []string{linuxAsset}}
	})

	ctx, logs := observed(zapcore.WarnLevel)

	f.resolver.set(toolRepo, f.release(toolRepo, "v1.0.0", false))

	_, err := f.engine.Install(ctx, toolRepo, &packages.Preferences{})
	require.NoError(t, err)

	require.NoError(t, f.engine.Uninstall(ctx, toolRepo))
	require.Equal(t, 1, logs.FilterMessage("Executables of the package are still running").Len())
	f.requireGone(t, toolRepo)
}
