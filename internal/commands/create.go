// Package commands implements eddev CLI commands.
package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/composer"
	"github.com/NielsdaWheelz/eddev/internal/config"
	"github.com/NielsdaWheelz/eddev/internal/ddev"
	"github.com/NielsdaWheelz/eddev/internal/envname"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
	"github.com/NielsdaWheelz/eddev/internal/fs"
	"github.com/NielsdaWheelz/eddev/internal/github"
	"github.com/NielsdaWheelz/eddev/internal/packagist"
	"github.com/NielsdaWheelz/eddev/internal/pipeline"
	"github.com/NielsdaWheelz/eddev/internal/prompt"
	"github.com/NielsdaWheelz/eddev/internal/provision"
	"github.com/NielsdaWheelz/eddev/internal/recipe"
	"github.com/NielsdaWheelz/eddev/internal/view"
)

// CreateOpts holds options for the create command.
type CreateOpts struct {
	// EnvName is the requested environment name (empty = prompt with a default).
	EnvName string

	// Recipe is a package name or one of the recipe shortcuts.
	Recipe     string
	Constraint string

	ExtraModules    []string
	ComposerOptions []string

	// PHPVersion overrides the version derived from the recipe.
	PHPVersion string

	DB        string
	DBVersion string

	// PRs are pull request URLs or org/repo#number references.
	PRs       []string
	PRHasDeps bool

	IncludeDynamoDB      bool
	IncludeFrameworkTest bool
	IncludeRecipeTesting bool
}

// PullRequestResolver turns pull request references into checkout details.
type PullRequestResolver interface {
	ResolveAll(ctx context.Context, refs []string) (github.PullRequestSet, error)
}

// CreateDeps holds the collaborators of Create.
type CreateDeps struct {
	Config   *config.Config
	Registry recipe.Registry
	Projects envname.ProjectLister
	Prompter prompt.Prompter

	// NewPullRequestResolver is only called when pull requests were
	// requested, so the token is not needed otherwise.
	NewPullRequestResolver func(ctx context.Context, token, apiURL string) (PullRequestResolver, error)

	Service pipeline.Service
	FS      fs.FS
	UI      *view.UI
}

// NewCreateDeps wires the production dependencies.
func NewCreateDeps(cfg *config.Config, ui *view.UI) CreateDeps {
	runner := exec.NewRealRunner()
	client := ddev.NewClient(runner, ui.Writer(), ui.Logger())
	return CreateDeps{
		Config:   cfg,
		Registry: packagist.NewClient(cfg.PackagistURL, packagist.WithLogger(ui.Logger())),
		Projects: client,
		Prompter: prompt.NewTerminal(ui.Writer()),
		NewPullRequestResolver: func(ctx context.Context, token, apiURL string) (PullRequestResolver, error) {
			r, err := github.NewResolver(ctx, token, apiURL, ui.Logger())
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		Service: provision.New(client, runner, ui),
		FS:      fs.NewRealFS(),
		UI:      ui,
	}
}

// Create executes the eddev create command.
// Every input is validated before anything is written; then the
// provisioning pipeline runs. Stage warnings are printed as they happen.
func Create(ctx context.Context, opts CreateOpts, deps CreateDeps) error {
	if deps.UI == nil {
		deps.UI = view.Discard()
	}

	st, err := PrepareCreate(ctx, opts, deps)
	if err != nil {
		return err
	}

	ui := deps.UI
	ui.Logger().Debug("creating environment",
		"name", st.Env.Name,
		"root", st.Env.Root,
		"recipe", st.Recipe.Name,
		"constraint", st.Recipe.Constraint,
		"resolved", st.Recipe.ResolvedVersion,
		"php", st.Env.PHPVersion,
		"prs", len(st.PRs))

	p := pipeline.NewPipeline(deps.Service)
	p.OnResult(func(r pipeline.Result) {
		printWarnings(ui, r.Warnings)
	})

	report, err := p.Run(ctx, st)
	if err != nil {
		return err
	}
	if !report.Succeeded() {
		return errors.NewWithDetails(errors.EBuildFailed, "environment created but the database build failed",
			map[string]string{"root": st.Env.Root})
	}

	lines := []string{fmt.Sprintf("Created environment %s", st.Env.Name), "root: " + st.Env.Root}
	if url := primaryURL(ctx, deps.Projects, st.Env.Name); url != "" {
		lines = append(lines, "url: "+url)
	}
	lines = append(lines, "next: cd "+st.Env.Root+" && ddev launch")
	ui.Success(lines...)
	return nil
}

// projectDescriber is implemented by ddev.Client.
type projectDescriber interface {
	Describe(ctx context.Context, name string) (ddev.Project, bool, error)
}

// primaryURL looks up the URL ddev serves the environment on.
// Returns "" when the lister cannot describe projects or the lookup fails.
func primaryURL(ctx context.Context, projects envname.ProjectLister, name string) string {
	d, ok := projects.(projectDescriber)
	if !ok {
		return ""
	}
	p, found, err := d.Describe(ctx, name)
	if err != nil || !found {
		return ""
	}
	return p.PrimaryURL
}

// PrepareCreate validates opts and resolves everything the pipeline needs:
// the recipe version, PHP version, environment name, project root and
// pull requests.
func PrepareCreate(ctx context.Context, opts CreateOpts, deps CreateDeps) (*pipeline.State, error) {
	if deps.UI == nil {
		deps.UI = view.Discard()
	}

	recipeName := recipe.NormalizeName(opts.Recipe)
	if err := recipe.ValidatePackageName(recipeName); err != nil {
		return nil, err
	}

	db := strings.ToLower(opts.DB)
	if db != pipeline.DBMySQL && db != pipeline.DBMariaDB {
		return nil, errors.NewWithDetails(errors.EInvalidOption,
			"--db must be one of "+pipeline.DBMySQL+", "+pipeline.DBMariaDB,
			map[string]string{"db": opts.DB})
	}

	rec, err := recipe.NewResolver(deps.Registry).Resolve(ctx, recipeName, opts.Constraint)
	if err != nil {
		return nil, err
	}

	php, err := recipe.SelectPHPVersion(opts.PHPVersion, rec)
	if err != nil {
		return nil, err
	}

	def := envname.DefaultName(rec.Name, rec.Constraint, len(opts.PRs) > 0)
	name, err := envname.NewResolver(deps.Projects, deps.Prompter).Resolve(ctx, opts.EnvName, def)
	if err != nil {
		return nil, err
	}

	root := deps.Config.ProjectRoot(name)
	if err := checkRoot(deps.FS, root); err != nil {
		return nil, err
	}

	prs, err := resolvePullRequests(ctx, opts, deps)
	if err != nil {
		return nil, err
	}

	st := &pipeline.State{
		Env: pipeline.Environment{
			Name:       name,
			Root:       root,
			DBEngine:   db,
			DBVersion:  opts.DBVersion,
			PHPVersion: php,
		},
		Recipe:               rec,
		IncludeDynamoDB:      opts.IncludeDynamoDB,
		IncludeFrameworkTest: opts.IncludeFrameworkTest,
		IncludeRecipeTesting: opts.IncludeRecipeTesting,
		ExtraModules:         opts.ExtraModules,
		PRs:                  prs,
		PRHasDeps:            opts.PRHasDeps,
	}
	st.Composer = composer.NewArgsBuilder(opts.ComposerOptions, st.DeferInstall())
	return st, nil
}

// checkRoot requires the project root to be missing or an empty directory.
func checkRoot(fsys fs.FS, root string) error {
	state, err := fs.InspectRoot(fsys, root)
	if err != nil {
		return errors.Wrap(errors.EInternal, "failed to inspect project root", err)
	}
	details := map[string]string{"root": root}
	switch state {
	case fs.RootNonEmptyDir:
		return errors.NewWithDetails(errors.ERootNotEmpty, "project root path must be empty", details)
	case fs.RootIsFile:
		return errors.NewWithDetails(errors.ERootNotEmpty, "project root path must not be a file", details)
	}
	return nil
}

func resolvePullRequests(ctx context.Context, opts CreateOpts, deps CreateDeps) (github.PullRequestSet, error) {
	if len(opts.PRs) == 0 {
		return nil, nil
	}
	if slices.Contains(opts.ComposerOptions, "--no-install") {
		deps.UI.Warning("Composer --no-install has been set. Cannot checkout PRs.")
		return nil, nil
	}

	token, err := deps.Config.RequireGitHubToken()
	if err != nil {
		return nil, err
	}
	resolver, err := deps.NewPullRequestResolver(ctx, token, deps.Config.GitHubAPIURL)
	if err != nil {
		return nil, errors.Wrap(errors.EInternal, "failed to create GitHub client", err)
	}
	prs, err := resolver.ResolveAll(ctx, opts.PRs)
	if err != nil {
		return nil, err
	}
	for _, ref := range replacedRefs(opts.PRs, prs) {
		deps.UI.Warning(fmt.Sprintf("Pull request %s was replaced by a later pull request for the same package.", ref))
	}
	return prs, nil
}

// replacedRefs returns the references in refs that did not survive into
// prs because a later reference targeted the same package.
func replacedRefs(refs []string, prs github.PullRequestSet) []string {
	kept := make(map[string]bool, len(prs))
	for _, pr := range prs {
		kept[pr.Ref] = true
	}
	var replaced []string
	for i, ref := range refs {
		if kept[ref] && !slices.Contains(refs[i+1:], ref) {
			continue
		}
		replaced = append(replaced, ref)
	}
	return replaced
}

func printWarnings(ui *view.UI, warnings []pipeline.Warning) {
	for _, w := range warnings {
		if w.Severity == pipeline.SeverityError {
			ui.Error(w.Message)
			continue
		}
		ui.Warning(w.Message)
	}
}
