package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/config"
	"github.com/NielsdaWheelz/eddev/internal/ddev"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
)

// DoctorReport holds all the data for doctor output.
type DoctorReport struct {
	// Configuration
	ProjectsPath   string
	PackagistURL   string
	GitHubAPIURL   string
	GitHubTokenSet bool

	// Tooling
	GitVersion   string
	DdevVersion  string
	DdevProjects int
}

// Doctor implements the `eddev doctor` command.
// Validates the configuration and the host tools create depends on.
func Doctor(ctx context.Context, cr exec.CommandRunner, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	gitVersion, err := checkGit(ctx, cr)
	if err != nil {
		return err
	}

	ddevVersion, err := checkDdev(ctx, cr)
	if err != nil {
		return err
	}

	projects, err := ddev.NewClient(cr, nil, logger).ProjectNames(ctx)
	if err != nil {
		return errors.Wrap(errors.EDdevNotInstalled, "ddev list failed", err)
	}

	apiURL := cfg.GitHubAPIURL
	if apiURL == "" {
		apiURL = "https://api.github.com/"
	}

	writeDoctorOutput(stdout, DoctorReport{
		ProjectsPath:   cfg.ProjectsPath,
		PackagistURL:   cfg.PackagistURL,
		GitHubAPIURL:   apiURL,
		GitHubTokenSet: cfg.GitHubToken != "",
		GitVersion:     gitVersion,
		DdevVersion:    ddevVersion,
		DdevProjects:   len(projects),
	})
	return nil
}

// checkGit verifies git is installed and returns its version.
func checkGit(ctx context.Context, cr exec.CommandRunner) (string, error) {
	result, err := cr.Run(ctx, "git", []string{"--version"}, exec.RunOpts{})
	if err != nil {
		return "", errors.New(errors.EGitNotInstalled, "git is not installed or not on PATH")
	}
	if result.ExitCode != 0 {
		return "", errors.New(errors.EGitNotInstalled, "git --version failed")
	}
	return strings.TrimSpace(result.Stdout), nil
}

// checkDdev verifies ddev is installed and returns its version.
func checkDdev(ctx context.Context, cr exec.CommandRunner) (string, error) {
	result, err := cr.Run(ctx, ddev.Binary, []string{"--version"}, exec.RunOpts{})
	if err != nil {
		return "", errors.NewWithDetails(errors.EDdevNotInstalled, "ddev is not installed or not on PATH",
			map[string]string{"hint": "see https://ddev.readthedocs.io/en/stable/users/install/"})
	}
	if result.ExitCode != 0 {
		return "", errors.New(errors.EDdevNotInstalled, "ddev --version failed")
	}
	// ddev --version prints "ddev version v1.23.1"
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	return strings.TrimPrefix(strings.TrimSpace(lines[0]), "ddev version "), nil
}

// writeDoctorOutput writes the stable key: value output.
func writeDoctorOutput(w io.Writer, r DoctorReport) {
	fmt.Fprintf(w, "projects_path: %s\n", r.ProjectsPath)
	fmt.Fprintf(w, "packagist_url: %s\n", r.PackagistURL)
	fmt.Fprintf(w, "github_api_url: %s\n", r.GitHubAPIURL)
	fmt.Fprintf(w, "github_token_set: %s\n", boolStr(r.GitHubTokenSet))

	fmt.Fprintf(w, "git_version: %s\n", r.GitVersion)
	fmt.Fprintf(w, "ddev_version: %s\n", r.DdevVersion)
	fmt.Fprintf(w, "ddev_projects: %d\n", r.DdevProjects)

	fmt.Fprintln(w, "status: ok")
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
