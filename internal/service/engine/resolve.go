package engine

import (
	"context"
	"fmt"

	"github.com/oshokin/dyst/internal/domain/packages"
)

// ResolveRelease applies the release policy to releases listed newest first.
// A pinned tag must match exactly. Otherwise the newest stable release wins, or
// the newest release of any kind when pre-releases are allowed.
func ResolveRelease(releases []packages.Release, prefs *packages.Preferences) (*packages.Release, error) {
	if prefs.Tag != "" {
		for i := range releases {
			if releases[i].Tag == prefs.Tag {
				return &releases[i], nil
			}
		}

		return nil, fmt.Errorf("%w: release %s not found", packages.ErrResolution, prefs.Tag)
	}

	for i := range releases {
		if prefs.AllowPrereleases || !releases[i].Prerelease {
			return &releases[i], nil
		}
	}

	if len(releases) == 0 {
		return nil, fmt.Errorf("%w: repository has no releases", packages.ErrResolution)
	}

	return nil, fmt.Errorf("%w: only pre-releases are available, allow them to install one", packages.ErrResolution)
}

// FetchRelease resolves the release that would be installed for repo.
func (e *Engine) FetchRelease(
	ctx context.Context,
	repo packages.Repository,
	prefs *packages.Preferences,
) (*packages.Release, error) {
	releases, err := e.resolver.Releases(ctx, repo)
	if err != nil {
		return nil, err
	}

	release, err := ResolveRelease(releases, prefs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", repo, err)
	}

	return release, nil
}
