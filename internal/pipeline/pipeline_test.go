package pipeline

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/github"
)

// mockService is a test implementation of Service.
// Each stage returns its configured result (zero value = OK) and is tracked.
type mockService struct {
	results map[string]Result

	// Track which stages were called
	called []string
}

func (m *mockService) result(stage string) Result {
	m.called = append(m.called, stage)
	if r, ok := m.results[stage]; ok {
		return r
	}
	return Succeeded(stage)
}

func (m *mockService) PrepareRoot(_ context.Context, _ *State) Result {
	return m.result(StagePrepareRoot)
}

func (m *mockService) ConfigureDdev(_ context.Context, _ *State) Result {
	return m.result(StageConfigureDdev)
}

func (m *mockService) CreateComposerProject(_ context.Context, _ *State) Result {
	return m.result(StageCreateComposerProject)
}

func (m *mockService) InstallOptionalModules(_ context.Context, _ *State) Result {
	return m.result(StageInstallOptionalModules)
}

func (m *mockService) IntegratePullRequests(_ context.Context, _ *State) Result {
	return m.result(StageIntegratePullRequests)
}

func (m *mockService) OverlayFiles(_ context.Context, _ *State) Result {
	return m.result(StageOverlayFiles)
}

func (m *mockService) BuildDatabase(_ context.Context, _ *State) Result {
	return m.result(StageBuildDatabase)
}

func advisory(stage, code, msg string) Result {
	r := Succeeded(stage)
	r.Warn(code, msg)
	return r
}

// TestAllStagesSucceed tests that every stage runs in order and the run succeeds.
func TestAllStagesSucceed(t *testing.T) {
	mock := &mockService{}

	report, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Succeeded() {
		t.Error("expected report to succeed")
	}
	if len(report.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", report.Warnings)
	}
	assertCalled(t, mock.called, stageOrder)
}

// TestShortCircuitPreservesErrorCode tests that the pipeline stops on the
// first fatal stage and preserves EddevError codes.
func TestShortCircuitPreservesErrorCode(t *testing.T) {
	mock := &mockService{results: map[string]Result{
		StageConfigureDdev: Aborted(StageConfigureDdev, errors.New(errors.EDdevConfigFailed, "ddev config failed")),
	}}

	report, err := NewPipeline(mock).Run(context.Background(), &State{})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := errors.GetCode(err); code != errors.EDdevConfigFailed {
		t.Errorf("expected error code %s, got %s", errors.EDdevConfigFailed, code)
	}
	if report.Succeeded() {
		t.Error("expected report not to succeed")
	}
	if len(report.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(report.Results))
	}
	assertCalled(t, mock.called, []string{StagePrepareRoot, StageConfigureDdev})
}

// TestNonEddevErrorIsWrapped tests that a plain error from a fatal stage
// becomes E_INTERNAL with the stage in details.
func TestNonEddevErrorIsWrapped(t *testing.T) {
	plainErr := stderrors.New("permission denied")
	mock := &mockService{results: map[string]Result{
		StageOverlayFiles: Aborted(StageOverlayFiles, plainErr),
	}}

	_, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	ae, ok := errors.AsEddevError(err)
	if !ok {
		t.Fatal("expected EddevError")
	}
	if ae.Code != errors.EInternal {
		t.Errorf("expected code %s, got %s", errors.EInternal, ae.Code)
	}
	if ae.Details["stage"] != StageOverlayFiles {
		t.Errorf("expected stage detail %q, got %q", StageOverlayFiles, ae.Details["stage"])
	}
	if !stderrors.Is(err, plainErr) {
		t.Error("expected cause to be preserved")
	}
	assertCalled(t, mock.called, stageOrder[:6])
}

// TestFatalWithoutErrorStillFails guards against a stage forgetting its error.
func TestFatalWithoutErrorStillFails(t *testing.T) {
	mock := &mockService{results: map[string]Result{
		StagePrepareRoot: {Outcome: Fatal},
	}}

	_, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestAdvisoriesAccumulate tests that advisory stages do not stop the run
// and that their warnings are collected in order with the stage attached.
func TestAdvisoriesAccumulate(t *testing.T) {
	mock := &mockService{results: map[string]Result{
		StageConfigureDdev:          advisory("wrong-name", "W_ADDON", "add the addon manually"),
		StageInstallOptionalModules: advisory(StageInstallOptionalModules, "W_MODULE", "require it manually"),
	}}

	report, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Succeeded() {
		t.Error("advisories before the final stage should not fail the run")
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(report.Warnings))
	}
	if report.Warnings[0].Code != "W_ADDON" || report.Warnings[0].Stage != StageConfigureDdev {
		t.Errorf("unexpected first warning %+v", report.Warnings[0])
	}
	if report.Warnings[1].Code != "W_MODULE" {
		t.Errorf("unexpected second warning %+v", report.Warnings[1])
	}
	assertCalled(t, mock.called, stageOrder)
}

// TestOptionalModuleFailureStillReachesOverlay mirrors a failed composer
// require: later stages run and the run succeeds.
func TestOptionalModuleFailureStillReachesOverlay(t *testing.T) {
	failed := Succeeded(StageInstallOptionalModules)
	failed.Warn("W_MODULE_REQUIRE_FAILED", "Couldn't require 'silverstripe/frameworktest' - add that dependency manually.")
	mock := &mockService{results: map[string]Result{StageInstallOptionalModules: failed}}

	report, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Succeeded() {
		t.Error("expected success")
	}
	assertCalled(t, mock.called, stageOrder)
}

// TestFinalBuildFailureFailsRun tests that an advisory outcome in the last
// stage makes the run unsuccessful without an error.
func TestFinalBuildFailureFailsRun(t *testing.T) {
	mock := &mockService{results: map[string]Result{
		StageBuildDatabase: advisory(StageBuildDatabase, "W_BUILD_FAILED", "run `ddev exec sake dev/build`"),
	}}

	report, err := NewPipeline(mock).Run(context.Background(), &State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Succeeded() {
		t.Error("expected run to be unsuccessful when the build fails")
	}
	final, ok := report.Final()
	if !ok || final.Stage != StageBuildDatabase || final.Outcome != Advisory {
		t.Errorf("unexpected final result %+v", final)
	}
}

// TestErrorSeverity tests that Fail keeps the pipeline going but marks the
// warning as an error.
func TestErrorSeverity(t *testing.T) {
	r := Succeeded(StageIntegratePullRequests)
	r.Fail("W_COMPOSER_INSTALL_FAILED", "Couldn't run composer install.")

	if r.Outcome != Advisory {
		t.Errorf("expected Advisory, got %s", r.Outcome)
	}
	if r.Warnings[0].Severity != SeverityError {
		t.Error("expected error severity")
	}

	fatal := Aborted(StageOverlayFiles, stderrors.New("x"))
	fatal.Warn("W", "still fatal")
	if fatal.Outcome != Fatal {
		t.Error("warnings must not downgrade a fatal result")
	}
}

// TestResultCallback tests that OnResult observes every executed stage.
func TestResultCallback(t *testing.T) {
	mock := &mockService{}
	p := NewPipeline(mock)

	var seen []string
	p.OnResult(func(r Result) { seen = append(seen, r.Stage) })

	if _, err := p.Run(context.Background(), &State{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertCalled(t, seen, stageOrder)
}

// TestCanceledContextStops tests that no stage runs after cancellation.
func TestCanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockService{}

	_, err := NewPipeline(mock).Run(ctx, &State{})
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mock.called) != 0 {
		t.Errorf("expected no stages, got %v", mock.called)
	}
}

func TestDeferInstall(t *testing.T) {
	st := &State{PRHasDeps: true}
	if st.DeferInstall() {
		t.Error("no PRs: install must not be deferred")
	}
	st.PRs = github.PullRequestSet{"silverstripe/framework": {PackageName: "silverstripe/framework"}}
	if !st.DeferInstall() {
		t.Error("PRs with dependencies: install must be deferred")
	}
	st.PRHasDeps = false
	if st.DeferInstall() {
		t.Error("PRs without dependencies: install must not be deferred")
	}
}

func assertCalled(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
