package policy

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ryanuber/go-glob"
)

const (
	globPrefix      = "glob:"
	semverPrefix    = "semver:"
	regexpPrefix    = "regexp:"
	regexpAltPrefix = "regex:"
)

// Pattern selects among git tags, for Applications that track a tag
// selector rather than a fixed ref.
type Pattern interface {
	// Matches returns true if the given tag matches the pattern.
	Matches(tag string) bool
	// String returns the prefixed string representation.
	String() string
	// Valid returns true if the pattern is considered valid.
	Valid() bool
	// Select picks the tag to deploy from those matching, or "" when
	// none match. Semver patterns pick the highest version; the
	// others pick the lexically greatest match, which at least is
	// deterministic.
	Select(tags []string) string
}

// IsPattern reports whether a revision reference is a tag selector
// rather than a fixed ref.
func IsPattern(ref string) bool {
	for _, p := range []string{globPrefix, semverPrefix, regexpPrefix, regexpAltPrefix} {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

type GlobPattern string

// SemverPattern matches by semantic versioning.
// See https://semver.org/
type SemverPattern struct {
	pattern     string // pattern without prefix
	constraints *semver.Constraints
}

// RegexpPattern matches by regular expression.
type RegexpPattern struct {
	pattern string // pattern without prefix
	regexp  *regexp.Regexp
}

// NewPattern instantiates a Pattern according to the prefix it
// finds. The prefix can be either `glob:` (default if omitted),
// `semver:` or `regexp:`.
func NewPattern(pattern string) Pattern {
	switch {
	case strings.HasPrefix(pattern, semverPrefix):
		pattern = strings.TrimPrefix(pattern, semverPrefix)
		c, _ := semver.NewConstraint(pattern)
		return SemverPattern{pattern, c}
	case strings.HasPrefix(pattern, regexpPrefix):
		pattern = strings.TrimPrefix(pattern, regexpPrefix)
		r, _ := regexp.Compile(pattern)
		return RegexpPattern{pattern, r}
	case strings.HasPrefix(pattern, regexpAltPrefix):
		pattern = strings.TrimPrefix(pattern, regexpAltPrefix)
		r, _ := regexp.Compile(pattern)
		return RegexpPattern{pattern, r}
	default:
		return GlobPattern(strings.TrimPrefix(pattern, globPrefix))
	}
}

func (g GlobPattern) Matches(tag string) bool {
	return glob.Glob(string(g), tag)
}

func (g GlobPattern) String() string {
	return globPrefix + string(g)
}

func (g GlobPattern) Valid() bool {
	return true
}

func (g GlobPattern) Select(tags []string) string {
	return lexicalMax(g, tags)
}

func (s SemverPattern) Matches(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	if s.constraints == nil {
		// Invalid constraints match anything
		return true
	}
	return s.constraints.Check(v)
}

func (s SemverPattern) String() string {
	return semverPrefix + s.pattern
}

func (s SemverPattern) Valid() bool {
	return s.constraints != nil
}

func (s SemverPattern) Select(tags []string) string {
	var matching semver.Collection
	byVersion := map[string]string{}
	for _, tag := range tags {
		if !s.Matches(tag) {
			continue
		}
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue
		}
		matching = append(matching, v)
		byVersion[v.String()] = tag
	}
	if len(matching) == 0 {
		return ""
	}
	sort.Sort(matching)
	return byVersion[matching[len(matching)-1].String()]
}

func (r RegexpPattern) Matches(tag string) bool {
	if r.regexp == nil {
		// Invalid regexp match anything
		return true
	}
	return r.regexp.MatchString(tag)
}

func (r RegexpPattern) String() string {
	return regexpPrefix + r.pattern
}

func (r RegexpPattern) Valid() bool {
	return r.regexp != nil
}

func (r RegexpPattern) Select(tags []string) string {
	return lexicalMax(r, tags)
}

func lexicalMax(p Pattern, tags []string) string {
	best := ""
	for _, tag := range tags {
		if p.Matches(tag) && tag > best {
			best = tag
		}
	}
	return best
}
