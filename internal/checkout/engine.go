// Package checkout rewires installed vendor packages to pull request
// branches. Each pull request is handled independently; one failure never
// stops the others.
package checkout

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/NielsdaWheelz/eddev/internal/exec"
	"github.com/NielsdaWheelz/eddev/internal/fs"
	"github.com/NielsdaWheelz/eddev/internal/git"
	"github.com/NielsdaWheelz/eddev/internal/github"
	"github.com/NielsdaWheelz/eddev/internal/view"
)

// Composer runs composer inside the environment.
type Composer interface {
	Composer(ctx context.Context, dir string, args ...string) error
}

// Item is the outcome for one pull request.
type Item struct {
	PR github.PullRequest
	// Required is set when the package had to be required first.
	Required bool
	Err      error
}

// OK reports whether the pull request was checked out.
func (i Item) OK() bool {
	return i.Err == nil
}

// Batch is the outcome for every pull request.
type Batch struct {
	Items []Item
	// OK is true when every item succeeded.
	OK bool
}

// Failed returns the items that did not check out.
func (b Batch) Failed() []Item {
	var out []Item
	for _, it := range b.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Engine checks pull requests out into a project's vendor directory.
type Engine struct {
	composer Composer
	git      exec.CommandRunner
	fs       fs.FS
	ui       *view.UI
}

// NewEngine creates an Engine. Git commands run on the host through runner.
func NewEngine(composer Composer, runner exec.CommandRunner, fsys fs.FS, ui *view.UI) *Engine {
	if ui == nil {
		ui = view.Discard()
	}
	return &Engine{composer: composer, git: runner, fs: fsys, ui: ui}
}

// VendorDir is where composer installs pkg under root.
func VendorDir(root, pkg string) string {
	return filepath.Join(root, "vendor", filepath.FromSlash(pkg))
}

// Run checks out every pull request in package name order.
func (e *Engine) Run(ctx context.Context, root string, prs github.PullRequestSet) Batch {
	batch := Batch{OK: true}
	for _, pr := range prs.Sorted() {
		item := e.checkout(ctx, root, pr)
		if !item.OK() {
			batch.OK = false
			e.ui.Logger().Debug("pull request checkout failed", "package", pr.PackageName, "err", item.Err)
		}
		batch.Items = append(batch.Items, item)
	}
	return batch
}

func (e *Engine) checkout(ctx context.Context, root string, pr github.PullRequest) Item {
	item := Item{PR: pr}
	alias := pr.Org.RemoteAlias()
	dir := VendorDir(root, pr.PackageName)

	e.ui.Step("Setting up PR for %s", pr.PackageName)
	e.ui.SubStep("Setting remote %s as %q and checking out branch %s", pr.Remote, alias, pr.Branch)

	exists, err := fs.Exists(e.fs, dir)
	if err != nil {
		item.Err = fmt.Errorf("could not check out pull request for %s: %w", pr.PackageName, err)
		return item
	}
	if !exists {
		e.ui.SubStep("%s is not yet added as a dependency - requiring it", pr.PackageName)
		item.Required = true
		if err := e.composer.Composer(ctx, root, "require", pr.PackageName, "--prefer-source"); err != nil {
			item.Err = fmt.Errorf("could not require %s: %w", pr.PackageName, err)
			return item
		}
	}

	steps := []func() error{
		func() error { return git.EnsureRemote(ctx, e.git, dir, alias, pr.Remote) },
		func() error { return git.Fetch(ctx, e.git, dir, alias) },
		func() error { return git.CheckoutTracking(ctx, e.git, dir, alias, pr.Branch) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			item.Err = fmt.Errorf("could not check out pull request for %s: %w", pr.PackageName, err)
			return item
		}
	}
	return item
}
