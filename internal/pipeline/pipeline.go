// Package pipeline provides the environment provisioning orchestrator.
// The pipeline executes stages in a fixed order. Each stage reports an
// explicit outcome: the first fatal outcome short-circuits, advisory
// outcomes accumulate warnings and the pipeline continues.
package pipeline

import (
	"context"
	"fmt"

	"github.com/NielsdaWheelz/eddev/internal/composer"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/github"
	"github.com/NielsdaWheelz/eddev/internal/recipe"
)

// Outcome is the verdict of a single stage.
type Outcome int

const (
	// OK means the stage did everything it set out to do.
	OK Outcome = iota
	// Advisory means part of the stage failed but the pipeline continues.
	Advisory
	// Fatal aborts the pipeline.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Advisory:
		return "advisory"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Severity is how loudly a warning is reported.
type Severity int

const (
	SeverityWarning Severity = iota
	// SeverityError is reported as an error even though the pipeline
	// continues.
	SeverityError
)

// Warning represents a non-fatal problem emitted during pipeline execution.
type Warning struct {
	// Code is a stable warning identifier.
	Code string

	// Stage is the stage that emitted the warning.
	Stage string

	// Message is a human-readable description, including the manual remedy.
	Message string

	Severity Severity
}

// Result is what a stage reports back to the orchestrator.
type Result struct {
	Stage    string
	Outcome  Outcome
	Err      error
	Warnings []Warning
}

// Warn appends a warning to r and downgrades an OK outcome to Advisory.
func (r *Result) Warn(code, msg string) {
	r.add(code, msg, SeverityWarning)
}

// Fail appends an error-severity warning. The outcome becomes Advisory;
// the pipeline still continues.
func (r *Result) Fail(code, msg string) {
	r.add(code, msg, SeverityError)
}

func (r *Result) add(code, msg string, sev Severity) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Stage: r.Stage, Message: msg, Severity: sev})
	if r.Outcome == OK {
		r.Outcome = Advisory
	}
}

// Succeeded returns an OK result for stage.
func Succeeded(stage string) Result {
	return Result{Stage: stage, Outcome: OK}
}

// Aborted returns a fatal result for stage.
func Aborted(stage string, err error) Result {
	return Result{Stage: stage, Outcome: Fatal, Err: err}
}

// Environment describes the environment being created.
type Environment struct {
	Name string
	// Root is the absolute project directory.
	Root       string
	DBEngine   string
	DBVersion  string
	PHPVersion string
}

// Database engines ddev can run for a new environment.
const (
	DBMySQL   = "mysql"
	DBMariaDB = "mariadb"
)

// State carries the inputs of one provisioning run between stages.
type State struct {
	Env    Environment
	Recipe recipe.Recipe

	IncludeDynamoDB      bool
	IncludeFrameworkTest bool
	IncludeRecipeTesting bool
	ExtraModules         []string

	// PRs are checked out into the vendor tree after install.
	PRs github.PullRequestSet
	// PRHasDeps declares the PRs in composer.json before the first install.
	PRHasDeps bool

	Composer *composer.ArgsBuilder
}

// DeferInstall reports whether the create phase must skip installing.
func (s *State) DeferInstall() bool {
	return s.PRHasDeps && len(s.PRs) > 0
}

// Service defines the stage implementations for the provisioning pipeline.
// Each method corresponds to a pipeline stage executed in order.
// Implementations are injected to allow testing without real ddev/composer/git.
type Service interface {
	// PrepareRoot creates the project directory.
	PrepareRoot(ctx context.Context, st *State) Result

	// ConfigureDdev configures the ddev project, adds addons and starts it.
	ConfigureDdev(ctx context.Context, st *State) Result

	// CreateComposerProject creates the recipe project with composer.
	CreateComposerProject(ctx context.Context, st *State) Result

	// InstallOptionalModules requires optional and extra modules.
	InstallOptionalModules(ctx context.Context, st *State) Result

	// IntegratePullRequests rewires vendor packages to pull request branches.
	IntegratePullRequests(ctx context.Context, st *State) Result

	// OverlayFiles copies the project template over the project root.
	OverlayFiles(ctx context.Context, st *State) Result

	// BuildDatabase runs the CMS database build.
	BuildDatabase(ctx context.Context, st *State) Result
}

// Report summarizes a pipeline run.
type Report struct {
	// Results holds one entry per executed stage, in order.
	Results []Result
	// Warnings accumulates the warnings of every executed stage.
	Warnings []Warning
}

// Final returns the result of the last executed stage.
func (r Report) Final() (Result, bool) {
	if len(r.Results) == 0 {
		return Result{}, false
	}
	return r.Results[len(r.Results)-1], true
}

// Succeeded reports whether the run should exit zero: every stage ran and
// the final stage was OK.
func (r Report) Succeeded() bool {
	if len(r.Results) != len(stageOrder) {
		return false
	}
	final, _ := r.Final()
	return final.Outcome == OK
}

// Stage name constants.
const (
	StagePrepareRoot            = "PrepareRoot"
	StageConfigureDdev          = "ConfigureDdev"
	StageCreateComposerProject  = "CreateComposerProject"
	StageInstallOptionalModules = "InstallOptionalModules"
	StageIntegratePullRequests  = "IntegratePullRequests"
	StageOverlayFiles           = "OverlayFiles"
	StageBuildDatabase          = "BuildDatabase"
)

var stageOrder = []string{
	StagePrepareRoot,
	StageConfigureDdev,
	StageCreateComposerProject,
	StageInstallOptionalModules,
	StageIntegratePullRequests,
	StageOverlayFiles,
	StageBuildDatabase,
}

// Pipeline orchestrates the execution of provisioning stages in a fixed order.
type Pipeline struct {
	svc Service
	// onResult is called after each stage.
	onResult func(Result)
}

// NewPipeline creates a pipeline with the given service implementation.
func NewPipeline(svc Service) *Pipeline {
	return &Pipeline{svc: svc}
}

// OnResult registers a callback invoked after every stage.
func (p *Pipeline) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Run executes the stages in fixed order:
//  1. PrepareRoot
//  2. ConfigureDdev
//  3. CreateComposerProject
//  4. InstallOptionalModules
//  5. IntegratePullRequests
//  6. OverlayFiles
//  7. BuildDatabase
//
// Behavior:
//   - The first Fatal result stops the run; its error is returned
//   - If the error is *EddevError, its code/message/details are preserved
//   - If not, it is wrapped into E_INTERNAL with the stage in details
//   - Advisory results add their warnings to the report and the run continues
//   - The report is returned even on error
func (p *Pipeline) Run(ctx context.Context, st *State) (Report, error) {
	var report Report
	stages := map[string]func(context.Context, *State) Result{
		StagePrepareRoot:            p.svc.PrepareRoot,
		StageConfigureDdev:          p.svc.ConfigureDdev,
		StageCreateComposerProject:  p.svc.CreateComposerProject,
		StageInstallOptionalModules: p.svc.InstallOptionalModules,
		StageIntegratePullRequests:  p.svc.IntegratePullRequests,
		StageOverlayFiles:           p.svc.OverlayFiles,
		StageBuildDatabase:          p.svc.BuildDatabase,
	}

	for _, name := range stageOrder {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := stages[name](ctx, st)
		res.Stage = name
		for i := range res.Warnings {
			res.Warnings[i].Stage = name
		}
		report.Results = append(report.Results, res)
		report.Warnings = append(report.Warnings, res.Warnings...)
		if p.onResult != nil {
			p.onResult(res)
		}

		if res.Outcome == Fatal {
			err := res.Err
			if err == nil {
				err = fmt.Errorf("stage failed without an error")
			}
			return report, wrapStageError(err, name)
		}
	}
	return report, nil
}

// wrapStageError ensures the error is an *EddevError.
// If already *EddevError, returns it unchanged.
// Otherwise wraps it with E_INTERNAL and stage name in details.
func wrapStageError(err error, stage string) error {
	if err == nil {
		return nil
	}

	if _, ok := errors.AsEddevError(err); ok {
		return err
	}

	return errors.WrapWithDetails(
		errors.EInternal,
		"internal error",
		err,
		map[string]string{"stage": stage},
	)
}
