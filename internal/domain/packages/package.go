package packages

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Repository identifies a GitHub repository as author/name.
type Repository struct {
	// Author is the owner of the repository.
	Author string
	// Name is the repository name.
	Name string
}

// ParseRepository parses an author/name identifier.
// Exactly one slash and two non-empty halves are required; neither half may be
// a dot segment or contain a path separator.
func ParseRepository(s string) (Repository, error) {
	author, name, ok := splitPair(s)
	if !ok {
		return Repository{}, fmt.Errorf("%w: %q, expected author/name", ErrInvalidRepository, s)
	}

	repo := Repository{Author: author, Name: name}
	if err := repo.Validate(); err != nil {
		return Repository{}, err
	}

	return repo, nil
}

// Validate checks that both halves can be used as single directory names.
func (r Repository) Validate() error {
	if !isSegment(r.Author) || !isSegment(r.Name) {
		return fmt.Errorf("%w: %q, expected author/name", ErrInvalidRepository, r.String())
	}

	return nil
}

// String renders the repository as author/name. It is the unique index key.
func (r Repository) String() string {
	return r.Author + "/" + r.Name
}

// ReleaseAsset is a downloadable file attached to a release.
type ReleaseAsset struct {
	// Name is the file name as published upstream.
	Name string
	// URL is the direct download address.
	URL string
	// Size is informational, zero when unknown.
	Size int64
}

// Release is a published version of a repository.
type Release struct {
	// Tag is the release tag, for example v1.2.3.
	Tag string
	// Prerelease marks releases flagged as pre-releases upstream.
	Prerelease bool
	// Assets are kept in upstream order.
	Assets []ReleaseAsset
}

// AssetNames returns the names of all assets in upstream order.
func (r *Release) AssetNames() []string {
	names := make([]string, 0, len(r.Assets))
	for _, asset := range r.Assets {
		names = append(names, asset.Name)
	}

	return names
}

// Rename maps a discovered executable base name to the published name.
type Rename struct {
	// Old is the base name of the executable inside the package.
	Old string
	// New is the name published in the binaries directory.
	New string
}

// ParseRename parses the canonical old/new form.
func ParseRename(s string) (*Rename, error) {
	oldName, newName, ok := splitPair(s)
	if !ok || !isSegment(oldName) || !isSegment(newName) {
		return nil, fmt.Errorf("%w: %q, expected old/new", ErrInvalidRename, s)
	}

	return &Rename{Old: oldName, New: newName}, nil
}

// String renders the canonical old/new form, or an empty string for a nil mapping.
func (r *Rename) String() string {
	if r == nil {
		return ""
	}

	return r.Old + "/" + r.New
}

// Apply returns the published name for an executable base name.
func (r *Rename) Apply(base string) string {
	if r != nil && base == r.Old {
		return r.New
	}

	return base
}

// InstalledPackage is the persisted record of an installed repository.
type InstalledPackage struct {
	Repository       Repository
	Tag              string
	Locked           bool
	AssetFilter      *regexp.Regexp
	Rename           *Rename
	AllowPrereleases bool
}

// FilterText returns the source of the asset filter or an empty string.
func (p *InstalledPackage) FilterText() string {
	if p.AssetFilter == nil {
		return ""
	}

	return p.AssetFilter.String()
}

// Preferences are the per-invocation install options.
type Preferences struct {
	// AllowPrereleases makes pre-releases eligible during resolution.
	AllowPrereleases bool
	// Tag pins an exact release tag when not empty.
	Tag string
	// AssetFilter replaces the automatic asset heuristic when set.
	AssetFilter *regexp.Regexp
	// Rename maps one executable to a different published name.
	Rename *Rename
	// Lock excludes the package from updates once installed.
	Lock bool
}

// PreferencesOf reconstructs the preferences used to keep a record up to date.
// The pinned tag is not reapplied and the lock is left unset.
func PreferencesOf(p *InstalledPackage) *Preferences {
	return &Preferences{
		AllowPrereleases: p.AllowPrereleases,
		AssetFilter:      p.AssetFilter,
		Rename:           p.Rename,
	}
}

// Record projects the preferences into the record committed for a release.
func (p *Preferences) Record(repo Repository, tag string) *InstalledPackage {
	return &InstalledPackage{
		Repository:       repo,
		Tag:              tag,
		Locked:           p.Lock,
		AssetFilter:      p.AssetFilter,
		Rename:           p.Rename,
		AllowPrereleases: p.AllowPrereleases,
	}
}

// Layout describes where packages and published executables live.
type Layout struct {
	// PackageStore holds one author/name directory per installed package.
	PackageStore string
	// BinDir is the directory on PATH that receives executable symlinks.
	BinDir string
}

// PackageDir returns the directory of a package inside the store.
func (l Layout) PackageDir(repo Repository) string {
	return filepath.Join(l.PackageStore, repo.Author, repo.Name)
}

// AuthorDir returns the parent directory shared by all packages of an author.
func (l Layout) AuthorDir(repo Repository) string {
	return filepath.Join(l.PackageStore, repo.Author)
}

// Contains reports whether the package directory of repo lies strictly below
// the package store, one level below its author directory.
func (l Layout) Contains(repo Repository) bool {
	return Below(l.PackageStore, l.AuthorDir(repo)) && Below(l.AuthorDir(repo), l.PackageDir(repo))
}

// Below reports whether path lies below root. Unlike Within, root itself does not count.
func Below(root, path string) bool {
	return Within(root, path) && filepath.Clean(root) != filepath.Clean(path)
}

// Within reports whether path equals root or lies below it.
// The comparison is textual and component-wise, so both paths may be gone from disk.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func splitPair(s string) (string, string, bool) {
	if strings.Count(s, "/") != 1 {
		return "", "", false
	}

	left, right, _ := strings.Cut(s, "/")
	if left == "" || right == "" {
		return "", "", false
	}

	return left, right, true
}

// isSegment reports whether s names exactly one path element.
func isSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}
