// Package envname validates environment names and derives a default one
// from the recipe being installed.
package envname

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/prompt"
)

// ForbiddenChars may not appear in an environment name.
const ForbiddenChars = " !@#$%^&*()\"',.<>/?:;\\"

// ProjectLister lists the names of environments that already exist.
type ProjectLister interface {
	ProjectNames(ctx context.Context) ([]string, error)
}

// Resolver validates a supplied name and prompts for a replacement when it
// is unusable.
type Resolver struct {
	projects ProjectLister
	prompter prompt.Prompter
}

// NewResolver creates a Resolver.
func NewResolver(projects ProjectLister, p prompt.Prompter) *Resolver {
	return &Resolver{projects: projects, prompter: p}
}

// Problem describes why a name was rejected. Empty means the name is valid.
func (r *Resolver) Problem(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "a name is required", nil
	}
	if i := strings.IndexAny(name, ForbiddenChars); i >= 0 {
		return fmt.Sprintf("%q contains the forbidden character %q", name, name[i]), nil
	}
	existing, err := r.projects.ProjectNames(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range existing {
		if p == name {
			return fmt.Sprintf("an environment called %q already exists", name), nil
		}
	}
	return "", nil
}

// Validate reports whether name can be used for a new environment.
func (r *Resolver) Validate(ctx context.Context, name string) (bool, error) {
	problem, err := r.Problem(ctx, name)
	if err != nil {
		return false, err
	}
	return problem == "", nil
}

// Resolve returns supplied when it is valid. Otherwise it prompts until the
// user gives a valid name, suggesting def with any forbidden characters
// replaced by hyphens.
//
// There is no attempt limit: the loop ends on a valid answer, a cancelled
// ctx, or E_INVALID_ENV_NAME when the prompt cannot be answered (input
// closed or not a terminal).
func (r *Resolver) Resolve(ctx context.Context, supplied, def string) (string, error) {
	def = Sanitize(def)
	name := supplied
	for attempt := 0; ; attempt++ {
		problem, err := r.Problem(ctx, name)
		if err != nil {
			return "", errors.Wrap(errors.EInternal, "failed to list existing environments", err)
		}
		if problem == "" {
			return name, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		question := "Name this environment."
		if attempt > 0 || supplied != "" {
			question = "Invalid environment name: " + problem + ".\n" + question
		}
		answer, err := r.prompter.Ask(question, def)
		if err != nil {
			return "", errors.WrapWithDetails(errors.EInvalidEnvName, "no valid environment name was provided", err,
				map[string]string{"hint": "pass the environment name as an argument"})
		}
		name = answer
	}
}

var stabilityMarkers = regexp.MustCompile(`^dev-|^v(\d)|-dev|[#@].*$`)

// DefaultName derives an environment name from a recipe and constraint,
// e.g. silverstripe/recipe-cms at ~5.2 becomes "recipe-cms_5.2".
// Dots in the version are kept for readability; Sanitize the result before
// using it as a name.
func DefaultName(recipeName, constraint string, hasPRs bool) string {
	base := Sanitize(path.Base(recipeName))

	c := stabilityMarkers.ReplaceAllString(constraint, "$1")
	c = strings.Trim(c, "~^")
	parts := strings.Split(c, ".")
	for i := range parts {
		parts[i] = Sanitize(parts[i])
	}
	c = strings.Join(parts, ".")

	name := base + "_" + c
	if hasPRs {
		name += "_with-prs"
	}
	return name
}

// Sanitize replaces every forbidden character in s with a hyphen.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(ForbiddenChars, r) {
			return '-'
		}
		return r
	}, s)
}
