package selector

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/oshokin/dyst/internal/domain/packages"
)

// Host describes the platform assets are selected for.
type Host struct {
	// OS is the operating system name, for example linux or darwin.
	OS string
	// Arch is the conventional machine name, for example x86_64 or aarch64.
	Arch string
}

// archAliases maps Go architecture names to the machine names used in release assets.
//
//nolint:gochecknoglobals // Read-only lookup table.
var archAliases = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"386":   "x86",
}

// DetectHost returns the platform of the running process.
func DetectHost() Host {
	arch, ok := archAliases[runtime.GOARCH]
	if !ok {
		arch = runtime.GOARCH
	}

	return Host{OS: runtime.GOOS, Arch: arch}
}

// Strategy scores an asset name; zero means the asset is not eligible.
type Strategy interface {
	Score(name string) int
}

// automatic scores names by occurrences of host tokens.
type automatic struct {
	tokens []string
}

// Automatic returns the default heuristic for a host.
// On x86_64 hosts the amd64 alias counts as well.
//
//nolint:ireturn // Strategies are selected at runtime.
func Automatic(host Host) Strategy {
	tokens := make([]string, 0, 3)
	for _, token := range []string{host.OS, host.Arch} {
		if token != "" {
			tokens = append(tokens, strings.ToLower(token))
		}
	}

	if strings.EqualFold(host.Arch, "x86_64") {
		tokens = append(tokens, "amd64")
	}

	return &automatic{tokens: tokens}
}

// Score implements Strategy.
func (a *automatic) Score(name string) int {
	name = strings.ToLower(name)

	score := 0
	for _, token := range a.tokens {
		score += strings.Count(name, token)
	}

	return score
}

// patternFilter scores names by matches of a user supplied pattern.
type patternFilter struct {
	re *regexp.Regexp
}

// PatternFilter returns a strategy that replaces the heuristic with a regular expression.
// The score is the number of non-overlapping matches against the lower-cased name.
//
//nolint:ireturn // Strategies are selected at runtime.
func PatternFilter(re *regexp.Regexp) Strategy {
	return &patternFilter{re: re}
}

// Score implements Strategy.
func (p *patternFilter) Score(name string) int {
	return len(p.re.FindAllStringIndex(strings.ToLower(name), -1))
}

// For returns the strategy matching the install preferences.
//
//nolint:ireturn // Strategies are selected at runtime.
func For(host Host, filter *regexp.Regexp) Strategy {
	if filter != nil {
		return PatternFilter(filter)
	}

	return Automatic(host)
}

// Select picks the highest scoring asset. Ties go to the asset listed first.
func Select(assets []packages.ReleaseAsset, strategy Strategy) (*packages.ReleaseAsset, error) {
	var (
		best      = -1
		bestScore = 0
	)

	for i := range assets {
		score := strategy.Score(assets[i].Name)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		candidates := make([]string, 0, len(assets))
		for _, asset := range assets {
			candidates = append(candidates, asset.Name)
		}

		return nil, &packages.SelectionError{Candidates: candidates}
	}

	selected := assets[best]

	return &selected, nil
}
