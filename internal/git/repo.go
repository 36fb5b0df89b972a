// Package git provides the git operations used to rewire vendor packages
// to pull request branches, via CommandRunner.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
)

// run executes git in repoDir and fails on a non-zero exit.
// Returns E_GIT_FAILED with the command's stderr in the details.
func run(ctx context.Context, cr exec.CommandRunner, repoDir string, args ...string) (exec.CmdResult, error) {
	line := exec.CommandLine("git", args)
	result, err := cr.Run(ctx, "git", args, exec.RunOpts{Dir: repoDir})
	if err != nil {
		// Execution failure (binary not found, etc.)
		return result, errors.Wrap(errors.EGitFailed, "failed to run "+line, err)
	}
	if result.ExitCode != 0 {
		return result, errors.NewWithDetails(errors.EGitFailed,
			fmt.Sprintf("%s exited with status %d", line, result.ExitCode),
			map[string]string{"dir": repoDir, "stderr": strings.TrimSpace(result.Stderr)})
	}
	return result, nil
}

// AddRemote adds a remote called name pointing at url.
// Uses `git remote add <name> <url>`.
func AddRemote(ctx context.Context, cr exec.CommandRunner, repoDir, name, url string) error {
	_, err := run(ctx, cr, repoDir, "remote", "add", name, url)
	return err
}

// Fetch fetches a remote.
// Uses `git fetch <remote>`.
func Fetch(ctx context.Context, cr exec.CommandRunner, repoDir, remote string) error {
	_, err := run(ctx, cr, repoDir, "fetch", remote)
	return err
}

// CheckoutTracking creates a local branch tracking remote/branch and checks
// it out. Uses `git checkout <remote>/<branch> --track --no-guess`, so the
// local branch is named after the remote branch.
func CheckoutTracking(ctx context.Context, cr exec.CommandRunner, repoDir, remote, branch string) error {
	_, err := run(ctx, cr, repoDir, "checkout", remote+"/"+branch, "--track", "--no-guess")
	return err
}

// RemoteURL returns the URL of a remote, or "" if it is not configured.
// Uses `git remote get-url <name>`. Never returns an error; failures result
// in an empty string.
func RemoteURL(ctx context.Context, cr exec.CommandRunner, repoDir, name string) string {
	result, err := cr.Run(ctx, "git", []string{"remote", "get-url", name}, exec.RunOpts{Dir: repoDir})
	if err != nil {
		return ""
	}
	if result.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

// EnsureRemote points remote name at url, adding it when missing.
// An existing remote with a different URL is re-pointed with
// `git remote set-url`.
func EnsureRemote(ctx context.Context, cr exec.CommandRunner, repoDir, name, url string) error {
	switch RemoteURL(ctx, cr, repoDir, name) {
	case "":
		return AddRemote(ctx, cr, repoDir, name, url)
	case url:
		return nil
	default:
		_, err := run(ctx, cr, repoDir, "remote", "set-url", name, url)
		return err
	}
}
