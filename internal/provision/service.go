// Package provision provides the concrete implementation of pipeline.Service.
// It wires together the ddev client, composer argument building, pull request
// checkout and the project scaffold for the create pipeline.
package provision

import (
	"context"
	"fmt"

	"github.com/NielsdaWheelz/eddev/internal/checkout"
	"github.com/NielsdaWheelz/eddev/internal/composer"
	"github.com/NielsdaWheelz/eddev/internal/ddev"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
	"github.com/NielsdaWheelz/eddev/internal/fs"
	"github.com/NielsdaWheelz/eddev/internal/github"
	"github.com/NielsdaWheelz/eddev/internal/pipeline"
	"github.com/NielsdaWheelz/eddev/internal/scaffold"
	"github.com/NielsdaWheelz/eddev/internal/view"
)

// Warning codes emitted by advisory stages.
const (
	WAddonFailed           = "W_DDEV_ADDON_FAILED"
	WOverlayFailed         = "W_DDEV_OVERLAY_FAILED"
	WStartFailed           = "W_DDEV_START_FAILED"
	WModuleRequireFailed   = "W_MODULE_REQUIRE_FAILED"
	WManifestFailed        = "W_COMPOSER_MANIFEST_FAILED"
	WComposerInstallFailed = "W_COMPOSER_INSTALL_FAILED"
	WCheckoutFailed        = "W_CHECKOUT_FAILED"
	WBuildFailed           = "W_BUILD_FAILED"
)

// Ddev is the subset of the ddev client the stages drive.
type Ddev interface {
	Config(ctx context.Context, dir string, opts ddev.ConfigOptions) error
	Get(ctx context.Context, dir, addon string) error
	Start(ctx context.Context, dir string) error
	Exec(ctx context.Context, dir string, args ...string) error
	Composer(ctx context.Context, dir string, args ...string) error
}

// Checkout rewires vendor packages to pull request branches.
type Checkout interface {
	Run(ctx context.Context, root string, prs github.PullRequestSet) checkout.Batch
}

// Service is the production implementation of pipeline.Service.
type Service struct {
	ddev     Ddev
	checkout Checkout
	fsys     fs.FS
	ui       *view.UI
}

// New creates a Service with production dependencies. Git runs on the host
// through runner; composer and ddev commands go through client.
func New(client *ddev.Client, runner exec.CommandRunner, ui *view.UI) *Service {
	fsys := fs.NewRealFS()
	return NewWithDeps(client, checkout.NewEngine(client, runner, fsys, ui), fsys, ui)
}

// NewWithDeps creates a Service with injected dependencies for testing.
func NewWithDeps(d Ddev, co Checkout, fsys fs.FS, ui *view.UI) *Service {
	if ui == nil {
		ui = view.Discard()
	}
	return &Service{ddev: d, checkout: co, fsys: fsys, ui: ui}
}

var _ pipeline.Service = (*Service)(nil)

// PrepareRoot creates the project directory.
func (s *Service) PrepareRoot(_ context.Context, st *pipeline.State) pipeline.Result {
	s.ui.Step("Preparing project directory")
	if err := s.fsys.MkdirAll(st.Env.Root, 0o755); err != nil {
		return pipeline.Aborted(pipeline.StagePrepareRoot, errors.WrapWithDetails(
			errors.ERootPrepareFailed, "couldn't create environment directory", err,
			map[string]string{"root": st.Env.Root}))
	}
	return pipeline.Succeeded(pipeline.StagePrepareRoot)
}

// ConfigureDdev configures the ddev project. Only `ddev config` itself is
// fatal; addons, overlays and start failures are reported and skipped.
func (s *Service) ConfigureDdev(ctx context.Context, st *pipeline.State) pipeline.Result {
	res := pipeline.Succeeded(pipeline.StageConfigureDdev)
	root := st.Env.Root

	s.ui.Step("Setting up DDEV project")
	err := s.ddev.Config(ctx, root, ddev.ConfigOptions{
		ProjectName: st.Env.Name,
		PHPVersion:  st.Env.PHPVersion,
		DBEngine:    st.Env.DBEngine,
		DBVersion:   st.Env.DBVersion,
	})
	if err != nil {
		return pipeline.Aborted(pipeline.StageConfigureDdev, stageError(errors.EDdevConfigFailed, "couldn't configure DDEV project", err))
	}

	for _, addon := range ddev.Addons {
		s.ui.SubStep("Adding DDEV addon %s", addon)
		if err := s.ddev.Get(ctx, root, addon); err != nil {
			s.ui.Logger().Debug("addon failed", "addon", addon, "err", err)
			res.Warn(WAddonFailed, fmt.Sprintf("Could not add DDEV addon %q - add that manually.", addon))
		}
	}

	written, err := scaffold.WriteDdevOverlays(s.fsys, root, scaffold.DdevOptions{IncludeDynamoDB: st.IncludeDynamoDB})
	if err != nil {
		s.ui.Logger().Debug("overlay failed", "err", err)
		res.Warn(WOverlayFailed, fmt.Sprintf("Couldn't write DDEV config overlays: %v", err))
	}
	for _, f := range written {
		s.ui.SubStep("Wrote %s", f)
	}

	s.ui.SubStep("Starting DDEV project")
	if err := s.ddev.Start(ctx, root); err != nil {
		s.ui.Logger().Debug("start failed", "err", err)
		res.Warn(WStartFailed, "Couldn't start DDEV project - run `ddev start` in "+root+".")
	}
	return res
}

// CreateComposerProject creates the recipe project inside the container.
func (s *Service) CreateComposerProject(ctx context.Context, st *pipeline.State) pipeline.Result {
	s.ui.Step("Creating composer project")
	inv := argsFor(st).Create(st.Recipe.Name, st.Recipe.Constraint)
	if err := s.ddev.Composer(ctx, st.Env.Root, inv.CommandArgs()...); err != nil {
		return pipeline.Aborted(pipeline.StageCreateComposerProject,
			stageError(errors.EComposerCreateFailed, "couldn't create composer project", err))
	}
	return pipeline.Succeeded(pipeline.StageCreateComposerProject)
}

// Module is a composer dependency added after the project is created.
type Module struct {
	Name string
	Dev  bool
}

// OptionalModules lists the modules to require for st, in install order.
func OptionalModules(st *pipeline.State) []Module {
	candidates := []struct {
		Module
		include bool
	}{
		{Module{Name: "silverstripe/dynamodb:" + st.Recipe.Constraint}, st.IncludeDynamoDB},
		{Module{Name: "behat/mink-selenium2-driver", Dev: true}, true},
		{Module{Name: "silverstripe/frameworktest", Dev: true}, st.IncludeFrameworkTest},
		{Module{Name: "silverstripe/recipe-testing", Dev: true}, st.IncludeRecipeTesting},
		// the kitchen sink already depends on developer-docs
		{Module{Name: "silverstripe/developer-docs"}, !st.Recipe.IsKitchenSink()},
	}

	var mods []Module
	for _, c := range candidates {
		if c.include {
			mods = append(mods, c.Module)
		}
	}
	for _, m := range st.ExtraModules {
		mods = append(mods, Module{Name: m})
	}
	return mods
}

// InstallOptionalModules requires each optional module. A failed require is
// reported and the next module is tried.
func (s *Service) InstallOptionalModules(ctx context.Context, st *pipeline.State) pipeline.Result {
	res := pipeline.Succeeded(pipeline.StageInstallOptionalModules)
	args := argsFor(st)

	for _, m := range OptionalModules(st) {
		s.ui.Step("Adding optional module %s", m.Name)
		inv := args.Require(m.Name, m.Dev)
		if err := s.ddev.Composer(ctx, st.Env.Root, inv.CommandArgs()...); err != nil {
			s.ui.Logger().Debug("require failed", "module", m.Name, "err", err)
			res.Warn(WModuleRequireFailed, fmt.Sprintf("Couldn't require '%s' - add that dependency manually.", m.Name))
		}
	}
	return res
}

// IntegratePullRequests brings pull request branches into the project.
// With PRHasDeps the forks are declared in composer.json and installed in
// one go; otherwise each installed package is checked out in place.
func (s *Service) IntegratePullRequests(ctx context.Context, st *pipeline.State) pipeline.Result {
	res := pipeline.Succeeded(pipeline.StageIntegratePullRequests)
	if len(st.PRs) == 0 {
		return res
	}

	if !st.PRHasDeps {
		batch := s.checkout.Run(ctx, st.Env.Root, st.PRs)
		for _, item := range batch.Failed() {
			s.ui.Logger().Debug("checkout failed", "package", item.PR.PackageName, "err", item.Err)
			res.Warn(WCheckoutFailed, fmt.Sprintf("Could not check out PR for %s - please check out that PR manually.", item.PR.PackageName))
		}
		return res
	}

	s.ui.Step("Adding PRs to composer.json")
	forks := make([]composer.Fork, 0, len(st.PRs))
	for _, pr := range st.PRs.Sorted() {
		forks = append(forks, composer.Fork{Package: pr.PackageName, URL: pr.Remote, Branch: pr.Branch})
	}
	if err := composer.AddForks(s.fsys, st.Env.Root, forks); err != nil {
		s.ui.Logger().Debug("manifest update failed", "err", err)
		res.Fail(WManifestFailed, fmt.Sprintf("Couldn't add PRs to %s: %v", composer.ManifestFile, err))
		return res
	}

	s.ui.Step("Running composer install now that dependencies have been defined")
	inv := argsFor(st).Install()
	if err := s.ddev.Composer(ctx, st.Env.Root, inv.CommandArgs()...); err != nil {
		s.ui.Logger().Debug("install failed", "err", err)
		res.Fail(WComposerInstallFailed, "Couldn't run composer install - run `ddev composer install` manually.")
	}
	return res
}

// OverlayFiles copies the static project files over the project root.
func (s *Service) OverlayFiles(_ context.Context, st *pipeline.State) pipeline.Result {
	s.ui.Step("Copying project files")
	result, err := scaffold.OverlayProject(s.fsys, st.Env.Root)
	if err != nil {
		return pipeline.Aborted(pipeline.StageOverlayFiles, errors.WrapWithDetails(
			errors.EFilesOverlayFailed, "couldn't copy project files", err,
			map[string]string{"root": st.Env.Root}))
	}
	s.ui.Logger().Debug("gitignore", "result", result)
	return pipeline.Succeeded(pipeline.StageOverlayFiles)
}

// BuildDatabase runs dev/build inside the container.
func (s *Service) BuildDatabase(ctx context.Context, st *pipeline.State) pipeline.Result {
	res := pipeline.Succeeded(pipeline.StageBuildDatabase)
	s.ui.Step("Building database")
	if err := s.ddev.Exec(ctx, st.Env.Root, "sake", "dev/build"); err != nil {
		s.ui.Logger().Debug("build failed", "err", err)
		res.Warn(WBuildFailed, "Couldn't build database - run `ddev exec sake dev/build`")
	}
	return res
}

func argsFor(st *pipeline.State) *composer.ArgsBuilder {
	if st.Composer == nil {
		st.Composer = composer.NewArgsBuilder(composer.DefaultOptions, st.DeferInstall())
	}
	return st.Composer
}

// stageError keeps codes already assigned lower down (a missing ddev binary
// stays E_DDEV_NOT_INSTALLED) and wraps anything else with code.
func stageError(code errors.Code, msg string, err error) error {
	if _, ok := errors.AsEddevError(err); ok {
		return err
	}
	return errors.Wrap(code, msg, err)
}
