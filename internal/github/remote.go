package github

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Org classifies the account a pull request's head repository lives under.
type Org int

const (
	OrgStandard Org = iota
	OrgCommunity
	OrgSecurity
)

// Remote URL prefixes of the fork organizations.
const (
	CommunityRemotePrefix = "git@github.com:creative-commoners/"
	SecurityRemotePrefix  = "git@github.com:silverstripe-security/"
)

// OrgOf classifies a remote URL.
func OrgOf(remote string) Org {
	switch {
	case strings.HasPrefix(remote, CommunityRemotePrefix):
		return OrgCommunity
	case strings.HasPrefix(remote, SecurityRemotePrefix):
		return OrgSecurity
	default:
		return OrgStandard
	}
}

// RemoteAlias is the git remote name used for pull requests from o.
func (o Org) RemoteAlias() string {
	switch o {
	case OrgCommunity:
		return "cc"
	case OrgSecurity:
		return "security"
	default:
		return "pr"
	}
}

func (o Org) String() string {
	switch o {
	case OrgCommunity:
		return "community"
	case OrgSecurity:
		return "security"
	default:
		return "standard"
	}
}

// Ref identifies a pull request.
type Ref struct {
	Owner  string
	Repo   string
	Number int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// validNamePattern matches valid GitHub owner/repo names.
var validNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ParseRef parses a pull request reference.
// Supports:
//   - https://github.com/owner/repo/pull/123 (optionally with a trailing path, query or fragment)
//   - owner/repo#123
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("empty pull request reference")
	}

	if ref, ok := parseURL(raw); ok {
		return ref, nil
	}
	if ref, ok := parseShorthand(raw); ok {
		return ref, nil
	}
	return Ref{}, fmt.Errorf("%q is not a pull request URL or owner/repo#number reference", raw)
}

// parseURL parses https://github.com/owner/repo/pull/123.
func parseURL(raw string) (Ref, bool) {
	rest, ok := strings.CutPrefix(raw, "https://github.com/")
	if !ok {
		return Ref{}, false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	// owner/repo/pull/123[/files|/commits...]
	if len(parts) < 4 || parts[2] != "pull" {
		return Ref{}, false
	}
	return newRef(parts[0], parts[1], parts[3])
}

// parseShorthand parses owner/repo#123.
func parseShorthand(raw string) (Ref, bool) {
	path, num, ok := strings.Cut(raw, "#")
	if !ok {
		return Ref{}, false
	}
	owner, repo, ok := strings.Cut(path, "/")
	if !ok {
		return Ref{}, false
	}
	return newRef(owner, repo, num)
}

func newRef(owner, repo, num string) (Ref, bool) {
	if !validNamePattern.MatchString(owner) || !validNamePattern.MatchString(repo) {
		return Ref{}, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Ref{}, false
	}
	return Ref{Owner: owner, Repo: repo, Number: n}, true
}
