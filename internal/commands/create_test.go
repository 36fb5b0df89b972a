package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/eddev/internal/composer"
	"github.com/NielsdaWheelz/eddev/internal/config"
	"github.com/NielsdaWheelz/eddev/internal/ddev"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/fs"
	"github.com/NielsdaWheelz/eddev/internal/github"
	"github.com/NielsdaWheelz/eddev/internal/packagist"
	"github.com/NielsdaWheelz/eddev/internal/pipeline"
	"github.com/NielsdaWheelz/eddev/internal/view"
)

func init() {
	color.NoColor = true
}

type fakeRegistry map[string][]packagist.Version

func (f fakeRegistry) Versions(_ context.Context, name string) ([]packagist.Version, error) {
	v, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, packagist.ErrNotFound)
	}
	return v, nil
}

var registry = fakeRegistry{
	"silverstripe/installer": {
		{Version: "5.2.0", Require: map[string]string{"php": "^8.1"}},
		{Version: "5.x-dev", Require: map[string]string{"php": "^8.1"}},
	},
	"silverstripe/recipe-cms": {
		{Version: "4.13.0", Require: map[string]string{"php": "^7.4 || ^8.0"}},
	},
}

type fakeProjects []string

func (f fakeProjects) ProjectNames(context.Context) ([]string, error) {
	return f, nil
}

// describingProjects also answers ddev describe lookups.
type describingProjects struct {
	fakeProjects
	described map[string]ddev.Project
}

func (d describingProjects) Describe(_ context.Context, name string) (ddev.Project, bool, error) {
	p, ok := d.described[name]
	return p, ok, nil
}

// fakePrompter accepts the suggested default every time.
type fakePrompter struct {
	asked []string
}

func (f *fakePrompter) Ask(question, def string) (string, error) {
	f.asked = append(f.asked, def)
	return def, nil
}

type fakePRResolver struct {
	refs []string
	set  github.PullRequestSet
	err  error
}

func (f *fakePRResolver) ResolveAll(_ context.Context, refs []string) (github.PullRequestSet, error) {
	f.refs = refs
	return f.set, f.err
}

// recordingService succeeds every stage unless told otherwise and keeps the
// state it was given.
type recordingService struct {
	state   *pipeline.State
	results map[string]pipeline.Result
}

func (r *recordingService) result(stage string, st *pipeline.State) pipeline.Result {
	r.state = st
	if res, ok := r.results[stage]; ok {
		return res
	}
	return pipeline.Succeeded(stage)
}

func (r *recordingService) PrepareRoot(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StagePrepareRoot, st)
}

func (r *recordingService) ConfigureDdev(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageConfigureDdev, st)
}

func (r *recordingService) CreateComposerProject(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageCreateComposerProject, st)
}

func (r *recordingService) InstallOptionalModules(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageInstallOptionalModules, st)
}

func (r *recordingService) IntegratePullRequests(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageIntegratePullRequests, st)
}

func (r *recordingService) OverlayFiles(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageOverlayFiles, st)
}

func (r *recordingService) BuildDatabase(_ context.Context, st *pipeline.State) pipeline.Result {
	return r.result(pipeline.StageBuildDatabase, st)
}

type harness struct {
	deps     CreateDeps
	out      *bytes.Buffer
	svc      *recordingService
	prompter *fakePrompter
	prs      *fakePRResolver
	resolves int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		out:      &bytes.Buffer{},
		svc:      &recordingService{results: map[string]pipeline.Result{}},
		prompter: &fakePrompter{},
		prs:      &fakePRResolver{},
	}
	h.deps = CreateDeps{
		Config:   &config.Config{ProjectsPath: t.TempDir(), PackagistURL: config.DefaultPackagistURL},
		Registry: registry,
		Projects: fakeProjects{"existing"},
		Prompter: h.prompter,
		NewPullRequestResolver: func(_ context.Context, token, _ string) (PullRequestResolver, error) {
			h.resolves++
			return h.prs, nil
		},
		Service: h.svc,
		FS:      fs.NewRealFS(),
		UI:      view.New(h.out, view.LogLevelSilent),
	}
	return h
}

func defaultOpts() CreateOpts {
	return CreateOpts{
		Recipe:               "installer",
		Constraint:           "5.x-dev",
		ComposerOptions:      composer.DefaultOptions,
		DB:                   "mysql",
		IncludeFrameworkTest: true,
		IncludeRecipeTesting: true,
	}
}

func TestCreate_Success(t *testing.T) {
	h := newHarness(t)
	opts := defaultOpts()
	opts.EnvName = "my-env"
	opts.ExtraModules = []string{"silverstripe/linkfield"}

	err := Create(context.Background(), opts, h.deps)
	require.NoError(t, err)

	st := h.svc.state
	require.NotNil(t, st)
	assert.Equal(t, "my-env", st.Env.Name)
	assert.Equal(t, filepath.Join(h.deps.Config.ProjectsPath, "my-env"), st.Env.Root)
	assert.Equal(t, "8.1", st.Env.PHPVersion)
	assert.Equal(t, "mysql", st.Env.DBEngine)
	assert.Equal(t, "silverstripe/installer", st.Recipe.Name)
	assert.Equal(t, "5.x-dev", st.Recipe.ResolvedVersion)
	assert.Equal(t, []string{"silverstripe/linkfield"}, st.ExtraModules)
	assert.Empty(t, st.PRs)
	assert.Equal(t, []string{"--no-interaction", "--prefer-source", "--no-audit"}, st.Composer.Args(composer.PhaseCreate))
	assert.Empty(t, h.prompter.asked)
	assert.Contains(t, h.out.String(), "Created environment my-env")
	assert.Zero(t, h.resolves)
}

func TestCreate_PrintsPrimaryURL(t *testing.T) {
	h := newHarness(t)
	h.deps.Projects = describingProjects{
		fakeProjects: fakeProjects{"existing"},
		described: map[string]ddev.Project{
			"my-env": {Name: "my-env", PrimaryURL: "https://my-env.ddev.site"},
		},
	}
	opts := defaultOpts()
	opts.EnvName = "my-env"

	require.NoError(t, Create(context.Background(), opts, h.deps))
	assert.Contains(t, h.out.String(), "url: https://my-env.ddev.site")
}

func TestCreate_PromptsWithDefaultName(t *testing.T) {
	h := newHarness(t)
	opts := defaultOpts()
	opts.Recipe = "cms"
	opts.Constraint = "^4.13"

	require.NoError(t, Create(context.Background(), opts, h.deps))

	assert.Equal(t, []string{"recipe-cms_4-13"}, h.prompter.asked)
	assert.Equal(t, "recipe-cms_4-13", h.svc.state.Env.Name)
	assert.Equal(t, "7.4", h.svc.state.Env.PHPVersion)
}

func TestCreate_ExistingNamePrompts(t *testing.T) {
	h := newHarness(t)
	opts := defaultOpts()
	opts.EnvName = "existing"

	require.NoError(t, Create(context.Background(), opts, h.deps))
	assert.Equal(t, []string{"installer_5-x"}, h.prompter.asked)
}

func TestCreate_ExplicitPHPVersion(t *testing.T) {
	h := newHarness(t)
	opts := defaultOpts()
	opts.EnvName = "env"
	opts.PHPVersion = "8.3"

	require.NoError(t, Create(context.Background(), opts, h.deps))
	assert.Equal(t, "8.3", h.svc.state.Env.PHPVersion)
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CreateOpts)
		code   errors.Code
	}{
		{"invalid db", func(o *CreateOpts) { o.DB = "postgres" }, errors.EInvalidOption},
		{"invalid recipe name", func(o *CreateOpts) { o.Recipe = "Not A Package" }, errors.EInvalidOption},
		{"unknown recipe", func(o *CreateOpts) { o.Recipe = "vendor/missing" }, errors.ERecipeNotFound},
		{"no matching version", func(o *CreateOpts) { o.Constraint = "^9" }, errors.ENoMatchingVersion},
		{"missing token for PRs", func(o *CreateOpts) { o.PRs = []string{"silverstripe/silverstripe-framework#1"} }, errors.EMissingEnv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			opts := defaultOpts()
			opts.EnvName = "env"
			tt.modify(&opts)

			err := Create(context.Background(), opts, h.deps)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Nil(t, h.svc.state, "nothing is provisioned after a validation error")
		})
	}
}

func TestCreate_RootNotEmpty(t *testing.T) {
	h := newHarness(t)
	root := filepath.Join(h.deps.Config.ProjectsPath, "env")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0o644))
	opts := defaultOpts()
	opts.EnvName = "env"

	err := Create(context.Background(), opts, h.deps)
	assert.Equal(t, errors.ERootNotEmpty, errors.GetCode(err))
}

func TestCreate_EmptyRootIsAllowed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.deps.Config.ProjectsPath, "env"), 0o755))
	opts := defaultOpts()
	opts.EnvName = "env"

	assert.NoError(t, Create(context.Background(), opts, h.deps))
}

var frameworkPR = github.PullRequest{
	Ref:         "silverstripe/silverstripe-framework#11",
	PackageName: "silverstripe/framework",
	Remote:      "git@github.com:creative-commoners/silverstripe-framework.git",
	Branch:      "pulls/5/fix",
	Org:         github.OrgCommunity,
}

func TestCreate_PullRequestsWithDeps(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.GitHubToken = "token"
	h.prs.set = github.PullRequestSet{frameworkPR.PackageName: frameworkPR}
	opts := defaultOpts()
	opts.PRs = []string{"silverstripe/silverstripe-framework#11"}
	opts.PRHasDeps = true

	require.NoError(t, Create(context.Background(), opts, h.deps))

	assert.Equal(t, opts.PRs, h.prs.refs)
	assert.Equal(t, []string{"installer_5-x_with-prs"}, h.prompter.asked)
	st := h.svc.state
	assert.Len(t, st.PRs, 1)
	assert.Contains(t, st.Composer.Args(composer.PhaseCreate), "--no-install")
	assert.NotContains(t, h.out.String(), "was replaced")
}

func TestCreate_DuplicatePullRequestIsReported(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.GitHubToken = "token"
	h.prs.set = github.PullRequestSet{frameworkPR.PackageName: frameworkPR}
	opts := defaultOpts()
	opts.EnvName = "env"
	opts.PRs = []string{
		"https://github.com/silverstripe/silverstripe-framework/pull/10",
		"silverstripe/silverstripe-framework#11",
	}

	require.NoError(t, Create(context.Background(), opts, h.deps))

	assert.Len(t, h.svc.state.PRs, 1)
	assert.Contains(t, h.out.String(),
		" WARNING  Pull request https://github.com/silverstripe/silverstripe-framework/pull/10 was replaced by a later pull request for the same package.")
}

func TestReplacedRefs(t *testing.T) {
	prs := github.PullRequestSet{frameworkPR.PackageName: frameworkPR}

	assert.Empty(t, replacedRefs([]string{frameworkPR.Ref}, prs))
	assert.Equal(t, []string{frameworkPR.Ref}, replacedRefs([]string{frameworkPR.Ref, frameworkPR.Ref}, prs))
	assert.Equal(t, []string{"a/b#1"}, replacedRefs([]string{"a/b#1", frameworkPR.Ref}, prs))
}

func TestCreate_NoInstallIgnoresPullRequests(t *testing.T) {
	h := newHarness(t)
	opts := defaultOpts()
	opts.EnvName = "env"
	opts.ComposerOptions = []string{"--no-install"}
	opts.PRs = []string{"silverstripe/silverstripe-framework#11"}

	require.NoError(t, Create(context.Background(), opts, h.deps))

	assert.Zero(t, h.resolves, "token is not required when PRs are ignored")
	assert.Empty(t, h.svc.state.PRs)
	assert.Contains(t, h.out.String(), "Composer --no-install has been set. Cannot checkout PRs.")
}

func TestCreate_PullRequestResolutionFails(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.GitHubToken = "token"
	h.prs.err = errors.New(errors.EPullRequestNotFound, "pull request not found")
	opts := defaultOpts()
	opts.EnvName = "env"
	opts.PRs = []string{"nope"}

	err := Create(context.Background(), opts, h.deps)
	assert.Equal(t, errors.EPullRequestNotFound, errors.GetCode(err))
	assert.Nil(t, h.svc.state)
}

func TestCreate_WarningsArePrinted(t *testing.T) {
	h := newHarness(t)
	modules := pipeline.Succeeded(pipeline.StageInstallOptionalModules)
	modules.Warn("W_MODULE_REQUIRE_FAILED", "Couldn't require 'silverstripe/frameworktest' - add that dependency manually.")
	prs := pipeline.Succeeded(pipeline.StageIntegratePullRequests)
	prs.Fail("W_COMPOSER_INSTALL_FAILED", "Couldn't run composer install.")
	h.svc.results[pipeline.StageInstallOptionalModules] = modules
	h.svc.results[pipeline.StageIntegratePullRequests] = prs
	opts := defaultOpts()
	opts.EnvName = "env"

	require.NoError(t, Create(context.Background(), opts, h.deps))

	out := h.out.String()
	assert.Contains(t, out, " WARNING  Couldn't require 'silverstripe/frameworktest' - add that dependency manually.")
	assert.Contains(t, out, " ERROR  Couldn't run composer install.")
	assert.Contains(t, out, "Created environment env")
}

func TestCreate_BuildFailure(t *testing.T) {
	h := newHarness(t)
	build := pipeline.Succeeded(pipeline.StageBuildDatabase)
	build.Warn("W_BUILD_FAILED", "Couldn't build database - run `ddev exec sake dev/build`")
	h.svc.results[pipeline.StageBuildDatabase] = build
	opts := defaultOpts()
	opts.EnvName = "env"

	err := Create(context.Background(), opts, h.deps)
	require.Error(t, err)
	assert.Equal(t, errors.EBuildFailed, errors.GetCode(err))
	assert.Equal(t, 1, errors.ExitCode(err))
	assert.NotContains(t, h.out.String(), "Created environment")
}

func TestCreate_FatalStage(t *testing.T) {
	h := newHarness(t)
	h.svc.results[pipeline.StageCreateComposerProject] = pipeline.Aborted(pipeline.StageCreateComposerProject,
		errors.New(errors.EComposerCreateFailed, "couldn't create composer project"))
	opts := defaultOpts()
	opts.EnvName = "env"

	err := Create(context.Background(), opts, h.deps)
	assert.Equal(t, errors.EComposerCreateFailed, errors.GetCode(err))
}
