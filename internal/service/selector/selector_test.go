package selector

import (
	"errors"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/dyst/internal/domain/packages"
)

func assets(names ...string) []packages.ReleaseAsset {
	result := make([]packages.ReleaseAsset, 0, len(names))
	for _, name := range names {
		result = append(result, packages.ReleaseAsset{Name: name, URL: "https://example.com/" + name})
	}

	return result
}

// TestSelectAutomaticLinuxAmd64 verifies the amd64 alias wins on x86_64 Linux hosts.
func TestSelectAutomaticLinuxAmd64(t *testing.T) {
	t.Parallel()

	list := assets("app-darwin-arm64.tar.gz", "app-linux-amd64.tar.gz", "app-windows-amd64.zip")

	asset, err := Select(list, Automatic(Host{OS: "linux", Arch: "x86_64"}))
	require.NoError(t, err)
	require.Equal(t, "app-linux-amd64.tar.gz", asset.Name)
}

// TestSelectAutomaticCaseInsensitive verifies host tokens match regardless of case.
func TestSelectAutomaticCaseInsensitive(t *testing.T) {
	t.Parallel()

	list := assets("Tool-Darwin-AARCH64.zip", "tool-linux-x86_64.zip")

	asset, err := Select(list, Automatic(Host{OS: "darwin", Arch: "aarch64"}))
	require.NoError(t, err)
	require.Equal(t, "Tool-Darwin-AARCH64.zip", asset.Name)
}

// TestSelectAmd64AliasOnlyOnX86 verifies amd64 is not counted for other architectures.
func TestSelectAmd64AliasOnlyOnX86(t *testing.T) {
	t.Parallel()

	list := assets("tool-amd64.zip", "tool-aarch64.zip")

	asset, err := Select(list, Automatic(Host{OS: "linux", Arch: "aarch64"}))
	require.NoError(t, err)
	require.Equal(t, "tool-aarch64.zip", asset.Name)
}

// TestSelectTieBreakFirstWins verifies the first asset in release order wins ties.
func TestSelectTieBreakFirstWins(t *testing.T) {
	t.Parallel()

	list := assets("tool-linux-x86_64-gnu.tar.gz", "tool-linux-x86_64-musl.tar.gz")

	asset, err := Select(list, Automatic(Host{OS: "linux", Arch: "x86_64"}))
	require.NoError(t, err)
	require.Equal(t, "tool-linux-x86_64-gnu.tar.gz", asset.Name)
}

// TestSelectPatternFilter verifies a filter replaces the heuristic entirely.
func TestSelectPatternFilter(t *testing.T) {
	t.Parallel()

	list := assets("tool-linux-x86_64-gnu.tar.gz", "tool-linux-x86_64-musl.tar.gz", "tool-darwin.zip")

	asset, err := Select(list, PatternFilter(regexp.MustCompile("musl")))
	require.NoError(t, err)
	require.Equal(t, "tool-linux-x86_64-musl.tar.gz", asset.Name)

	// Matching is done on the lower-cased name.
	asset, err = Select(assets("TOOL-MUSL.zip"), PatternFilter(regexp.MustCompile("musl")))
	require.NoError(t, err)
	require.Equal(t, "TOOL-MUSL.zip", asset.Name)
}

// TestSelectNoMatch verifies a SelectionError listing every candidate when nothing scores.
func TestSelectNoMatch(t *testing.T) {
	t.Parallel()

	list := assets("checksums.txt", "source.tar.gz")

	_, err := Select(list, Automatic(Host{OS: "linux", Arch: "x86_64"}))
	require.ErrorIs(t, err, packages.ErrSelection)

	var selErr *packages.SelectionError
	require.True(t, errors.As(err, &selErr))
	require.Equal(t, []string{"checksums.txt", "source.tar.gz"}, selErr.Candidates)

	_, err = Select(nil, Automatic(Host{OS: "linux", Arch: "x86_64"}))
	require.ErrorIs(t, err, packages.ErrSelection)
}

// TestDetectHost verifies the Go architecture names are mapped to machine names.
func TestDetectHost(t *testing.T) {
	t.Parallel()

	host := DetectHost()
	require.Equal(t, runtime.GOOS, host.OS)

	switch runtime.GOARCH {
	case "amd64":
		require.Equal(t, "x86_64", host.Arch)
	case "arm64":
		require.Equal(t, "aarch64", host.Arch)
	default:
		require.NotEmpty(t, host.Arch)
	}
}

// TestFor verifies the filter takes precedence over the heuristic.
func TestFor(t *testing.T) {
	t.Parallel()

	host := Host{OS: "linux", Arch: "x86_64"}
	require.IsType(t, &automatic{}, For(host, nil))
	require.IsType(t, &patternFilter{}, For(host, regexp.MustCompile("x")))
}
