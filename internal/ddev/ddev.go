// Package ddev drives the ddev CLI through a CommandRunner.
package ddev

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	osexec "os/exec"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
)

// Binary is the ddev executable name.
const Binary = "ddev"

// Addons installed into every new environment.
var Addons = []string{
	"ddev/ddev-selenium-standalone-chrome",
	"ddev/ddev-phpmyadmin",
}

// Project is one entry of `ddev list -j` / `ddev describe -j`.
type Project struct {
	Name       string `json:"name"`
	AppRoot    string `json:"approot"`
	Status     string `json:"status"`
	PrimaryURL string `json:"primary_url"`
	Type       string `json:"type"`
}

// ExitError reports a ddev command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("`%s` exited with status %d", e.Command, e.ExitCode)
}

// Client runs ddev commands.
type Client struct {
	runner exec.CommandRunner
	// stream receives the output of long-running commands.
	stream io.Writer
	logger *slog.Logger
}

// NewClient creates a Client. Output of interactive commands is copied to
// stream when it is non-nil.
func NewClient(runner exec.CommandRunner, stream io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{runner: runner, stream: stream, logger: logger}
}

// Run executes `ddev <args...>` in dir, streaming its output.
// A non-zero exit is returned as *ExitError.
func (c *Client) Run(ctx context.Context, dir string, args ...string) error {
	_, err := c.run(ctx, dir, c.stream, args)
	return err
}

func (c *Client) run(ctx context.Context, dir string, stream io.Writer, args []string) (exec.CmdResult, error) {
	line := exec.CommandLine(Binary, args)
	c.logger.Debug("running", "cmd", line, "dir", dir)

	res, err := c.runner.Run(ctx, Binary, args, exec.RunOpts{Dir: dir, Stream: stream})
	if err != nil {
		if stderrors.Is(err, osexec.ErrNotFound) {
			return res, errors.WrapWithDetails(errors.EDdevNotInstalled, "ddev is not installed or not on PATH", err,
				map[string]string{"hint": "see https://ddev.readthedocs.io/en/stable/users/install/"})
		}
		return res, fmt.Errorf("run %s: %w", line, err)
	}
	if !res.OK() {
		return res, &ExitError{Command: line, ExitCode: res.ExitCode}
	}
	return res, nil
}

// ConfigOptions are the settings passed to `ddev config`.
type ConfigOptions struct {
	ProjectName string
	PHPVersion  string
	DBEngine    string
	// DBVersion pins the database version. Empty uses ddev's default image
	// for the engine.
	DBVersion string
}

// ConfigArgs builds the `ddev config` argument list.
func ConfigArgs(opts ConfigOptions) []string {
	db := "--db-image=" + opts.DBEngine
	if opts.DBVersion != "" {
		db = "--database=" + opts.DBEngine + ":" + opts.DBVersion
	}
	return []string{
		"config",
		db,
		"--webserver-type=apache-fpm",
		"--project-type=php",
		"--php-version=" + opts.PHPVersion,
		"--project-name=" + opts.ProjectName,
		"--timezone=Pacific/Auckland",
		"--docroot=public",
		"--create-docroot",
	}
}

// Config runs `ddev config` in dir.
func (c *Client) Config(ctx context.Context, dir string, opts ConfigOptions) error {
	return c.Run(ctx, dir, ConfigArgs(opts)...)
}

// Get installs an addon with `ddev get`.
func (c *Client) Get(ctx context.Context, dir, addon string) error {
	return c.Run(ctx, dir, "get", addon)
}

// Start runs `ddev start`.
func (c *Client) Start(ctx context.Context, dir string) error {
	return c.Run(ctx, dir, "start")
}

// Exec runs a command inside the web container.
func (c *Client) Exec(ctx context.Context, dir string, args ...string) error {
	return c.Run(ctx, dir, append([]string{"exec"}, args...)...)
}

// Composer runs composer inside the web container.
func (c *Client) Composer(ctx context.Context, dir string, args ...string) error {
	return c.Run(ctx, dir, append([]string{"composer"}, args...)...)
}

// List returns every project ddev knows about.
func (c *Client) List(ctx context.Context) ([]Project, error) {
	res, err := c.run(ctx, "", nil, []string{"list", "-j"})
	if err != nil {
		return nil, err
	}
	var projects []Project
	if err := decodeRaw(res.Stdout, &projects); err != nil {
		return nil, fmt.Errorf("parse ddev list output: %w", err)
	}
	return projects, nil
}

// Describe returns the named project. ok is false when no such project
// exists.
func (c *Client) Describe(ctx context.Context, name string) (Project, bool, error) {
	res, err := c.run(ctx, "", nil, []string{"describe", "-j", name})
	if err != nil {
		var exitErr *ExitError
		if stderrors.As(err, &exitErr) {
			return Project{}, false, nil
		}
		return Project{}, false, err
	}
	var p Project
	if err := decodeRaw(res.Stdout, &p); err != nil {
		return Project{}, false, fmt.Errorf("parse ddev describe output: %w", err)
	}
	return p, p.Name != "", nil
}

// ProjectNames lists the names of existing projects.
func (c *Client) ProjectNames(ctx context.Context) ([]string, error) {
	projects, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names, nil
}

// decodeRaw finds the "raw" payload in ddev's JSON log output. ddev writes
// one JSON object per line; only the line carrying "raw" matters.
func decodeRaw(out string, v any) error {
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var entry struct {
			Raw json.RawMessage `json:"raw"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if len(entry.Raw) == 0 || string(entry.Raw) == "null" {
			continue
		}
		return json.Unmarshal(entry.Raw, v)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	// no raw payload: nothing to report
	return nil
}
