// Package github resolves pull request references to the remote, branch and
// Composer package they should be checked out into.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	gh "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/NielsdaWheelz/eddev/internal/errors"
)

// PullRequest is a resolved pull request.
type PullRequest struct {
	// Ref is the reference as the user gave it.
	Ref string
	// PackageName is the Composer package the base repository publishes.
	PackageName string
	// Remote is the SSH clone URL of the head repository.
	Remote string
	// Branch is the head branch.
	Branch string
	Org    Org
}

// PullRequestSet holds resolved pull requests keyed by package name.
// Adding a second pull request for the same package replaces the first.
type PullRequestSet map[string]PullRequest

// Add stores pr, replacing any pull request for the same package.
// Reports whether one was replaced.
func (s PullRequestSet) Add(pr PullRequest) bool {
	_, replaced := s[pr.PackageName]
	s[pr.PackageName] = pr
	return replaced
}

// Sorted returns the pull requests ordered by package name.
func (s PullRequestSet) Sorted() []PullRequest {
	out := make([]PullRequest, 0, len(s))
	for _, pr := range s {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out
}

// Resolver looks pull requests up through the GitHub API.
type Resolver struct {
	client *gh.Client
	logger *slog.Logger
}

// NewResolver creates a Resolver authenticated with token. apiURL overrides
// the API base URL (GitHub Enterprise, tests); empty uses api.github.com.
func NewResolver(ctx context.Context, token, apiURL string, logger *slog.Logger) (*Resolver, error) {
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client := gh.NewClient(hc)
	if apiURL != "" {
		base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrap(errors.EInvalidOption, "invalid GitHub API URL", err)
		}
		client.BaseURL = base
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{client: client, logger: logger}, nil
}

// ResolveAll resolves every reference. The first failure aborts the batch.
// Later references for the same package replace earlier ones.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) (PullRequestSet, error) {
	set := PullRequestSet{}
	for _, raw := range refs {
		pr, err := r.Resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		if set.Add(pr) {
			r.logger.Debug("pull request replaces an earlier one for the same package",
				"package", pr.PackageName, "ref", raw)
		}
	}
	return set, nil
}

// Resolve looks up a single pull request reference.
// Returns E_PULL_REQUEST_NOT_FOUND when the reference is malformed or
// cannot be resolved.
func (r *Resolver) Resolve(ctx context.Context, raw string) (PullRequest, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return PullRequest{}, notFound(raw, err)
	}

	r.logger.Debug("fetching pull request", "ref", ref.String())
	pr, _, err := r.client.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return PullRequest{}, notFound(raw, err)
	}

	head := pr.GetHead()
	remote := head.GetRepo().GetSSHURL()
	branch := head.GetRef()
	if remote == "" || branch == "" {
		return PullRequest{}, notFound(raw, fmt.Errorf("head repository of %s is no longer available", ref))
	}

	pkg, err := r.packageName(ctx, ref, pr.GetBase().GetRef())
	if err != nil {
		return PullRequest{}, notFound(raw, err)
	}

	return PullRequest{
		Ref:         raw,
		PackageName: pkg,
		Remote:      remote,
		Branch:      branch,
		Org:         OrgOf(remote),
	}, nil
}

// packageName reads the Composer package name from the base repository's
// composer.json.
func (r *Resolver) packageName(ctx context.Context, ref Ref, baseRef string) (string, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: baseRef}
	file, _, _, err := r.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, "composer.json", opts)
	if err != nil {
		return "", fmt.Errorf("read composer.json of %s/%s: %w", ref.Owner, ref.Repo, err)
	}
	if file == nil {
		return "", fmt.Errorf("composer.json of %s/%s is not a file", ref.Owner, ref.Repo)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode composer.json of %s/%s: %w", ref.Owner, ref.Repo, err)
	}

	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return "", fmt.Errorf("parse composer.json of %s/%s: %w", ref.Owner, ref.Repo, err)
	}
	if manifest.Name == "" {
		return "", fmt.Errorf("composer.json of %s/%s has no package name", ref.Owner, ref.Repo)
	}
	return manifest.Name, nil
}

func notFound(raw string, err error) error {
	return errors.WrapWithDetails(errors.EPullRequestNotFound,
		fmt.Sprintf("could not resolve pull request %s", raw), err,
		map[string]string{"ref": raw})
}
