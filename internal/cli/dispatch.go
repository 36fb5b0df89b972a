// Package cli handles command-line parsing and dispatch for eddev.
package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/eddev/internal/commands"
	"github.com/NielsdaWheelz/eddev/internal/composer"
	"github.com/NielsdaWheelz/eddev/internal/config"
	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/exec"
	"github.com/NielsdaWheelz/eddev/internal/recipe"
	"github.com/NielsdaWheelz/eddev/internal/version"
	"github.com/NielsdaWheelz/eddev/internal/view"
)

// Env is shared state passed from the root command to subcommands.
// The function fields are the command implementations; tests replace them.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// UI is configured once flags are parsed.
	UI *view.UI

	LoadConfig func() (*config.Config, error)
	Create     func(ctx context.Context, cfg *config.Config, ui *view.UI, opts commands.CreateOpts) error
	Doctor     func(ctx context.Context, cfg *config.Config, ui *view.UI) error
}

// NewEnv returns an Env wired to the real commands.
func NewEnv(stdout, stderr io.Writer) *Env {
	return &Env{
		Stdout:     stdout,
		Stderr:     stderr,
		UI:         view.New(stdout, view.LogLevelSilent),
		LoadConfig: loadConfig,
		Create: func(ctx context.Context, cfg *config.Config, ui *view.UI, opts commands.CreateOpts) error {
			return commands.Create(ctx, opts, commands.NewCreateDeps(cfg, ui))
		},
		Doctor: func(ctx context.Context, cfg *config.Config, ui *view.UI) error {
			return commands.Doctor(ctx, exec.NewRealRunner(), cfg, ui.Logger(), ui.Writer())
		},
	}
}

// Run parses arguments and dispatches to the appropriate subcommand.
// Returns an error if the command fails; the caller should print the error and exit.
// Ctrl-C cancels the running command.
func Run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return Execute(ctx, NewEnv(stdout, stderr), args)
}

// Execute runs the command tree against env.
func Execute(ctx context.Context, env *Env, args []string) error {
	root := NewRootCommand(env)
	root.SetArgs(args)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(errors.EUsage, "invalid flags", err)
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if _, ok := errors.AsEddevError(err); ok {
			return err
		}
		// cobra's own argument and command errors
		return errors.Wrap(errors.EUsage, err.Error(), err)
	}
	return nil
}

// NewRootCommand builds the eddev command tree.
func NewRootCommand(env *Env) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "eddev",
		Short: "Create opinionated Silverstripe CMS development environments on DDEV",
		Long: color.BlueString("Usage: eddev [global options] <command> [args]") + "\n\n" +
			"eddev scaffolds local Silverstripe CMS environments: it resolves a recipe\n" +
			"version, configures a DDEV project, installs the recipe with composer and\n" +
			"can check out pull requests into the vendor directory.\n",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if _, exists := os.LookupEnv("NO_COLOR"); exists {
				color.NoColor = true
			}
			level := view.ParseLogLevel(os.Getenv(config.EnvLog))
			if debug {
				level = view.LogLevelDebug
			}
			env.UI = view.New(env.Stdout, level)
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate("eddev {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Set log level to debug")

	cmd.AddCommand(
		newCreateCommand(env),
		newDoctorCommand(env),
	)
	return cmd
}

func newCreateCommand(env *Env) *cobra.Command {
	opts := commands.CreateOpts{}
	var noDynamoDB, noFrameworkTest, noRecipeTesting bool

	cmd := &cobra.Command{
		Use:   "create [env-name]",
		Short: "Create a new local development environment",
		Long: "Create a new local development environment from a recipe.\n\n" +
			"The environment directory is created under " + config.EnvProjectsPath + " and contains\n" +
			"the DDEV configuration, the composer project, and the .env file.\n\n" +
			"Recipe shortcuts: " + shortcutList() + ".",
		Example: `  eddev create
  eddev create my-env -r cms -c ^5.2 -m silverstripe/linkfield
  eddev create --pr silverstripe/silverstripe-framework#11000 --pr-has-deps
  eddev create -o=--prefer-dist --db mariadb --db-version 10.11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.EnvName = args[0]
			}
			for _, n := range []struct {
				no     bool
				target *bool
				name   string
			}{
				{noDynamoDB, &opts.IncludeDynamoDB, "include-dynamodb"},
				{noFrameworkTest, &opts.IncludeFrameworkTest, "include-frameworktest"},
				{noRecipeTesting, &opts.IncludeRecipeTesting, "include-recipe-testing"},
			} {
				if !n.no {
					continue
				}
				if cmd.Flags().Changed(n.name) {
					return errors.New(errors.EUsage, fmt.Sprintf("--%s and --no-%s cannot be used together", n.name, n.name))
				}
				*n.target = false
			}

			cfg, err := env.LoadConfig()
			if err != nil {
				return err
			}
			return env.Create(cmd.Context(), cfg, env.UI, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Recipe, "recipe", "r", recipe.Installer, "The recipe to install. Options: "+shortcutList()+", any recipe composer name (e.g. \"silverstripe/recipe-cms\")")
	f.StringVarP(&opts.Constraint, "constraint", "c", "5.x-dev", "The version constraint to use for the installed recipe")
	f.StringArrayVarP(&opts.ExtraModules, "extra-module", "m", nil, "Any additional modules to be required before dev/build (repeatable)")
	f.StringArrayVarP(&opts.ComposerOptions, "composer-option", "o", composer.DefaultOptions, "Any additional arguments to be passed to the composer create-project command (repeatable)")
	f.StringVarP(&opts.PHPVersion, "php-version", "P", "", "The PHP version to use for this environment. Uses the lowest allowed version by default")
	f.StringVar(&opts.DB, "db", "mysql", "The database type to be used. Must be one of \"mariadb\", \"mysql\"")
	f.StringVar(&opts.DBVersion, "db-version", "", "The version of the database docker image to be used")
	f.StringArrayVar(&opts.PRs, "pr", nil, "A pull request URL or org/repo#123 reference to check out in the vendor directory (repeatable)")
	f.BoolVar(&opts.PRHasDeps, "pr-has-deps", false, "A pull request from --pr has a dependency; add the forks to composer.json before installing")

	f.BoolVar(&opts.IncludeDynamoDB, "include-dynamodb", false, "Use a local DynamoDB container to store session data and install silverstripe/dynamodb")
	f.BoolVar(&noDynamoDB, "no-include-dynamodb", false, "Do not install silverstripe/dynamodb")
	f.BoolVar(&opts.IncludeFrameworkTest, "include-frameworktest", true, "Include silverstripe/frameworktest as a dev dependency")
	f.BoolVar(&noFrameworkTest, "no-include-frameworktest", false, "Do not include silverstripe/frameworktest")
	f.BoolVar(&opts.IncludeRecipeTesting, "include-recipe-testing", true, "Include silverstripe/recipe-testing as a dev dependency")
	f.BoolVar(&noRecipeTesting, "no-include-recipe-testing", false, "Do not include silverstripe/recipe-testing")

	return cmd
}

func newDoctorCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites and show resolved configuration",
		Long: "Check prerequisites and show resolved configuration.\n" +
			"Verifies git and ddev are installed and the environment configuration is valid.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := env.LoadConfig()
			if err != nil {
				return err
			}
			return env.Doctor(cmd.Context(), cfg, env.UI)
		},
	}
}

func shortcutList() string {
	return strings.Join(slices.Sorted(maps.Keys(recipe.Shortcuts)), ", ")
}

func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(errors.EInternal, "failed to get working directory", err)
	}
	home, _ := os.UserHomeDir()
	return config.Load(config.LoadOpts{
		EnvFiles: config.DefaultEnvFiles(cwd, home),
		HomeDir:  home,
	})
}
