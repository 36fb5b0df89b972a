// Package semver wraps github.com/Masterminds/semver/v3 with Composer's
// constraint dialect.
//
// Composer and Masterminds mostly agree on syntax. The differences handled
// here: a single "|" is an OR, "@stability" flags are ignored, and a tilde
// with fewer than three parts ("~5.2") allows everything up to the next
// major version.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// ErrBranchConstraint is returned for branch constraints such as "5.x-dev"
// or "dev-main". No tagged version satisfies a branch.
var ErrBranchConstraint = errors.New("branch constraint matches no tagged version")

// Version is a semantic version.
type Version struct {
	v *mm.Version
}

// Constraint is a semantic version constraint.
//
// Examples:
// - ">=7.4 <8.3"
// - "^8.1"
// - "~5.2"
// - "^7.4 || ^8.0"
type Constraint struct {
	c   *mm.Constraints
	raw string
}

// ParseVersion parses raw as a semantic version.
func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component, or 0 for the zero Version.
func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

// Minor returns the minor component, or 0 for the zero Version.
func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

// MajorMinor renders the version as "major.minor".
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// String returns the normalized version text.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// ParseConstraint parses a Composer constraint.
// Branch constraints fail with ErrBranchConstraint.
func ParseConstraint(raw string) (Constraint, error) {
	if IsBranch(raw) {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, ErrBranchConstraint)
	}
	c, err := mm.NewConstraint(normalizeConstraint(raw))
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{c: c, raw: raw}, nil
}

// MustParseConstraint is like ParseConstraint but panics on error.
func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the constraint as it was written.
func (c Constraint) String() string {
	return c.raw
}

// Satisfies reports whether v meets c. Zero values never match.
func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// IsBranch reports whether raw names a branch ("dev-main", "5.x-dev")
// rather than a version range.
func IsBranch(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "dev-") || strings.HasSuffix(raw, "-dev")
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// MaxSatisfying returns the highest version in candidates that satisfies c.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(c Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Satisfies(candidate, c) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}

var (
	stabilityFlag = regexp.MustCompile(`@[a-zA-Z]+`)
	singlePipe    = regexp.MustCompile(`\s*\|{1,2}\s*`)
	operatorSpace = regexp.MustCompile(`(<=|>=|!=|==|<|>|=|\^|~)\s+`)
	shortTilde    = regexp.MustCompile(`~\s*v?(\d+)(?:\.(\d+))?(?:\.\*)?(?:[\s,|]|$)`)
)

// normalizeConstraint rewrites Composer constraint syntax into the
// Masterminds dialect.
func normalizeConstraint(raw string) string {
	s := strings.TrimSpace(raw)
	s = stabilityFlag.ReplaceAllString(s, "")
	s = singlePipe.ReplaceAllString(s, " || ")
	s = operatorSpace.ReplaceAllString(s, "$1")

	// ~X and ~X.Y mean >=X.Y <X+1 in Composer.
	s = shortTilde.ReplaceAllStringFunc(s, func(m string) string {
		sub := shortTilde.FindStringSubmatch(m)
		major, _ := strconv.Atoi(sub[1])
		minor := "0"
		if sub[2] != "" {
			minor = sub[2]
		}
		tail := ""
		if last := m[len(m)-1]; last == ' ' || last == ',' || last == '|' {
			tail = string(last)
		}
		return fmt.Sprintf(">=%d.%s.0, <%d.0.0%s", major, minor, major+1, tail)
	})
	return strings.TrimSpace(s)
}

// LowerBound returns the smallest version admitted by a constraint
// expression. AND terms take the largest of their floors and OR
// alternatives take the smallest. Terms with no floor (e.g. "<8.0") count
// as 0.0.0.
func LowerBound(raw string) (Version, error) {
	s := strings.TrimSpace(stabilityFlag.ReplaceAllString(raw, ""))
	if s == "" {
		return Version{}, fmt.Errorf("semver: empty constraint")
	}

	var lowest Version
	first := true
	for _, alt := range singlePipe.Split(s, -1) {
		floor, err := andFloor(alt)
		if err != nil {
			return Version{}, fmt.Errorf("semver: lower bound of %q: %w", raw, err)
		}
		if first || Compare(floor, lowest) < 0 {
			lowest = floor
			first = false
		}
	}
	return lowest, nil
}

var hyphenRange = regexp.MustCompile(`^\s*(\S+)\s+-\s+(\S+)\s*$`)

func andFloor(group string) (Version, error) {
	group = strings.TrimSpace(group)
	if m := hyphenRange.FindStringSubmatch(group); m != nil {
		return termFloor(m[1])
	}

	group = operatorSpace.ReplaceAllString(group, "$1")
	terms := strings.FieldsFunc(group, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(terms) == 0 {
		return Version{}, fmt.Errorf("empty constraint group")
	}

	floor := MustParseVersion("0.0.0")
	for _, term := range terms {
		v, err := termFloor(term)
		if err != nil {
			return Version{}, err
		}
		if Compare(v, floor) > 0 {
			floor = v
		}
	}
	return floor, nil
}

func termFloor(term string) (Version, error) {
	switch {
	case term == "*" || term == "x" || term == "X":
		return MustParseVersion("0.0.0"), nil
	case strings.HasPrefix(term, "<"), strings.HasPrefix(term, "!="):
		return MustParseVersion("0.0.0"), nil
	}

	v := strings.TrimLeft(term, "^~>=")
	v = strings.TrimPrefix(v, "v")
	v = strings.TrimSuffix(v, "-dev")
	v = strings.NewReplacer(".*", ".0", ".x", ".0", ".X", ".0").Replace(v)
	return ParseVersion(v)
}
