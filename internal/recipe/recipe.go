// Package recipe resolves a recipe name and version constraint to a concrete
// published version, and derives the PHP version an environment should run.
package recipe

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/packagist"
	"github.com/NielsdaWheelz/eddev/internal/semver"
)

// Well-known recipe packages.
const (
	Installer   = "silverstripe/installer"
	KitchenSink = "silverstripe/recipe-kitchen-sink"
	Core        = "silverstripe/recipe-core"
	CMS         = "silverstripe/recipe-cms"
)

// Shortcuts maps short recipe names to full package names.
var Shortcuts = map[string]string{
	"installer": Installer,
	"sink":      KitchenSink,
	"core":      Core,
	"cms":       CMS,
}

// NormalizeName expands a shortcut to its full package name.
// Names that are not shortcuts are returned unchanged.
func NormalizeName(name string) string {
	if full, ok := Shortcuts[name]; ok {
		return full
	}
	return name
}

var packageName = regexp.MustCompile(`^[a-z0-9]([_.-]?[a-z0-9]+)*/[a-z0-9](([_.]?|-{0,2})[a-z0-9]+)*$`)

// ValidatePackageName checks name against Composer's package naming rules.
func ValidatePackageName(name string) error {
	if !packageName.MatchString(name) {
		return errors.NewWithDetails(errors.EInvalidOption,
			fmt.Sprintf("recipe %q is not a valid package name", name),
			map[string]string{"hint": "use vendor/package or one of: installer, sink, core, cms"})
	}
	return nil
}

// Recipe is a resolved recipe version.
type Recipe struct {
	Name            string
	Constraint      string
	ResolvedVersion string
	// PHPConstraint is the resolved version's "php" requirement.
	// Empty when the version declares none.
	PHPConstraint string
}

// IsKitchenSink reports whether the recipe is the kitchen sink, which
// already bundles the documentation module.
func (r Recipe) IsKitchenSink() bool {
	return r.Name == KitchenSink
}

// Registry lists the published versions of a package.
type Registry interface {
	Versions(ctx context.Context, name string) ([]packagist.Version, error)
}

// Resolver resolves recipe constraints against a registry.
type Resolver struct {
	registry Registry
}

// NewResolver creates a Resolver backed by reg.
func NewResolver(reg Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve finds the version of name that constraint selects.
//
// A version string equal to the constraint wins outright (this is how
// branch constraints like "5.x-dev" resolve). A branch with no such key
// fails with E_NO_MATCHING_VERSION; tagged releases never stand in for it.
// Otherwise the highest version satisfying the constraint is chosen.
func (r *Resolver) Resolve(ctx context.Context, name, constraint string) (Recipe, error) {
	name = NormalizeName(name)

	versions, err := r.registry.Versions(ctx, name)
	if err != nil {
		if stderrors.Is(err, packagist.ErrNotFound) {
			return Recipe{}, errors.NewWithDetails(errors.ERecipeNotFound,
				fmt.Sprintf("recipe %s was not found in the package registry", name),
				map[string]string{"recipe": name})
		}
		return Recipe{}, errors.Wrap(errors.ERegistryUnavailable, "failed to query the package registry", err)
	}

	for _, v := range versions {
		if v.Version == constraint {
			return newRecipe(name, constraint, v), nil
		}
	}

	c, err := semver.ParseConstraint(constraint)
	if err != nil {
		return Recipe{}, errors.WrapWithDetails(errors.ENoMatchingVersion,
			fmt.Sprintf("no version of %s matches %q", name, constraint), err,
			map[string]string{"recipe": name, "constraint": constraint})
	}

	var (
		best      semver.Version
		bestEntry packagist.Version
		found     bool
	)
	for _, entry := range versions {
		v, err := semver.ParseVersion(entry.Version)
		if err != nil {
			// dev branches only match exactly
			continue
		}
		if !semver.Satisfies(v, c) {
			continue
		}
		if !found || semver.Compare(v, best) > 0 {
			best, bestEntry, found = v, entry, true
		}
	}
	if !found {
		return Recipe{}, errors.NewWithDetails(errors.ENoMatchingVersion,
			fmt.Sprintf("no version of %s matches %q", name, constraint),
			map[string]string{"recipe": name, "constraint": constraint})
	}
	return newRecipe(name, constraint, bestEntry), nil
}

func newRecipe(name, constraint string, v packagist.Version) Recipe {
	return Recipe{
		Name:            name,
		Constraint:      constraint,
		ResolvedVersion: v.Version,
		PHPConstraint:   strings.TrimSpace(v.Require["php"]),
	}
}

// SelectPHPVersion picks the PHP version for an environment.
//
// An explicit version is returned as given. Otherwise the lower bound of the
// recipe's own php requirement is used, as major.minor. Dependencies of the
// recipe are not consulted.
func SelectPHPVersion(explicit string, r Recipe) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if r.PHPConstraint == "" {
		return "", errors.NewWithDetails(errors.EUndeterminedRuntimeVersion,
			fmt.Sprintf("could not determine a PHP version: %s %s declares no php requirement", r.Name, r.ResolvedVersion),
			map[string]string{"hint": "pass --php-version explicitly"})
	}
	floor, err := semver.LowerBound(r.PHPConstraint)
	if err != nil {
		return "", errors.WrapWithDetails(errors.EUndeterminedRuntimeVersion,
			fmt.Sprintf("could not determine a PHP version from %q", r.PHPConstraint), err,
			map[string]string{"hint": "pass --php-version explicitly"})
	}
	return floor.MajorMinor(), nil
}
