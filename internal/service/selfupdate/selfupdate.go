package selfupdate

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha512"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/service/engine"
	"github.com/oshokin/dyst/internal/service/selector"
	"github.com/oshokin/dyst/internal/version"
)

const (
	// DefaultExecutableName is the base name of the executable looked up in release assets.
	DefaultExecutableName = "dyst"

	// DefaultFileMode is applied to the replaced executable.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction verifies the new executable while it is applied.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var errNoExecutable = errors.New("release asset contains no executable")

// Classifier decides whether a file is a native executable.
type Classifier interface {
	IsExecutable(path string) (bool, error)
}

// Dependencies are the collaborators of an Updater.
type Dependencies struct {
	Resolver   engine.ReleaseResolver
	Downloader engine.Downloader
	Extractor  engine.Extractor
	Classifier Classifier
}

// Options describe what is updated.
type Options struct {
	// Repository publishes dyst releases.
	Repository packages.Repository
	// Host selects the release asset.
	Host selector.Host
	// CurrentVersion is compared with the newest release tag.
	CurrentVersion string
	// TargetPath is the executable to replace; the running executable when empty.
	TargetPath string
	// ScratchDir receives the temporary extraction directory; the system default when empty.
	ScratchDir string
	// ExecutableName is looked up among the extracted files; DefaultExecutableName when empty.
	ExecutableName string
}

// Result describes a finished self-update.
type Result struct {
	From    string
	To      string
	Updated bool
}

// Updater replaces the dyst executable.
type Updater struct {
	resolver   engine.ReleaseResolver
	downloader engine.Downloader
	extractor  engine.Extractor
	classifier Classifier
}

// New creates an updater.
func New(deps *Dependencies) *Updater {
	return &Updater{
		resolver:   deps.Resolver,
		downloader: deps.Downloader,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
	}
}

// Run installs the newest stable release over the target executable unless
// it already runs that version.
func (u *Updater) Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "self-update")

	releases, err := u.resolver.Releases(ctx, opts.Repository)
	if err != nil {
		return nil, err
	}

	release, err := engine.ResolveRelease(releases, &packages.Preferences{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Repository, err)
	}

	result := &Result{From: opts.CurrentVersion, To: release.Tag}

	if version.Equal(release.Tag, opts.CurrentVersion) {
		logger.InfoKV(ctx, "Already running the newest release", "version", opts.CurrentVersion)
		return result, nil
	}

	asset, err := selector.Select(release.Assets, selector.Automatic(opts.Host))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", opts.Repository, release.Tag, err)
	}

	target, err := targetPath(opts.TargetPath)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(opts.ScratchDir, "dyst-self-update-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w: %w", packages.ErrFilesystem, err)
	}

	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	logger.InfoKV(ctx, "Downloading release", "from", opts.CurrentVersion, "to", release.Tag, "asset", asset.Name)

	if err = u.fetch(ctx, asset, workDir); err != nil {
		return nil, err
	}

	name := opts.ExecutableName
	if name == "" {
		name = DefaultExecutableName
	}

	executable, err := u.findExecutable(workDir, name)
	if err != nil {
		return nil, err
	}

	if err = apply(ctx, executable, target); err != nil {
		return nil, err
	}

	result.Updated = true

	logger.InfoKV(ctx, "Replaced executable", "path", target, "version", release.Tag)

	return result, nil
}

func (u *Updater) fetch(ctx context.Context, asset *packages.ReleaseAsset, outDir string) error {
	payload, err := u.downloader.Open(ctx, asset.URL)
	if err != nil {
		return err
	}

	defer func() {
		_ = payload.Close()
	}()

	return u.extractor.Extract(ctx, payload, asset.Name, outDir)
}

// findExecutable returns the extracted executable called name. A release that
// ships a single executable under another name is accepted as well.
func (u *Updater) findExecutable(root, name string) (string, error) {
	var executables []string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		ok, err := u.classifier.IsExecutable(path)
		if err != nil || !ok {
			return err
		}

		executables = append(executables, path)

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan release: %w: %w", packages.ErrFilesystem, err)
	}

	for _, path := range executables {
		if strings.TrimSuffix(filepath.Base(path), ".exe") == name {
			return path, nil
		}
	}

	if len(executables) == 1 {
		return executables[0], nil
	}

	return "", fmt.Errorf("%w: %w named %s", packages.ErrArchive, errNoExecutable, name)
}

// apply atomically swaps target for the executable at source.
func apply(ctx context.Context, source, target string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("read new executable: %w: %w", packages.ErrFilesystem, err)
	}

	checksum := sha512.Sum512(data)

	logger.Debug(ctx, "Applying update")

	err = goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultFileMode,
		Checksum:   checksum[:],
		Hash:       DefaultChecksumFunction,
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w: %w", target, packages.ErrFilesystem, err)
	}

	if err = os.Remove(target + ".old"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.DebugKV(ctx, "Failed to remove previous executable", "error", err)
	}

	return nil
}

func targetPath(path string) (string, error) {
	if path == "" {
		executable, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate running executable: %w: %w", packages.ErrFilesystem, err)
		}

		path = executable
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w: %w", path, packages.ErrFilesystem, err)
	}

	return resolved, nil
}
