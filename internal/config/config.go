// Package config loads eddev's environment configuration once at startup.
//
// Values come from the process environment, optionally seeded from .env
// files. A variable already present in the environment always wins over
// the same variable in a .env file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/NielsdaWheelz/eddev/internal/errors"
	"github.com/NielsdaWheelz/eddev/internal/paths"
)

// Environment variable names.
const (
	EnvProjectsPath = "EDDEV_DEFAULT_PROJECTS_PATH"
	EnvGitHubToken  = "EDDEV_GITHUB_TOKEN"
	EnvCloneDir     = "EDDEV_CLONE_DIR"
	EnvPackagistURL = "EDDEV_PACKAGIST_URL"
	EnvGitHubAPIURL = "EDDEV_GITHUB_API_URL"
	EnvLog          = "EDDEV_LOG"
)

// DefaultPackagistURL is the public Composer repository.
const DefaultPackagistURL = "https://repo.packagist.org"

// Config holds the resolved environment configuration.
type Config struct {
	// ProjectsPath is the directory new environments are created under. Required.
	ProjectsPath string `mapstructure:"default_projects_path"`
	// GitHubToken authenticates pull request lookups. Required only with --pr.
	GitHubToken string `mapstructure:"github_token"`
	// CloneDir is where standalone clones go. Unused by create.
	CloneDir string `mapstructure:"clone_dir"`
	// PackagistURL is the Composer registry base URL.
	PackagistURL string `mapstructure:"packagist_url"`
	// GitHubAPIURL overrides the GitHub API base URL (GitHub Enterprise).
	GitHubAPIURL string `mapstructure:"github_api_url"`
	// LogLevel is the debug log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log"`
}

// LoadOpts controls where configuration is read from.
type LoadOpts struct {
	// EnvFiles are .env files merged into the environment in order.
	// Missing files are skipped.
	EnvFiles []string
	// HomeDir expands a leading ~ in path values. Empty disables expansion.
	HomeDir string
}

// DefaultEnvFiles returns the .env files eddev reads by default: one in the
// working directory and one in the user's config directory.
func DefaultEnvFiles(cwd, homeDir string) []string {
	files := []string{filepath.Join(cwd, ".env")}
	if dir := paths.ConfigDir(paths.OSEnv{}, homeDir); dir != "" {
		files = append(files, filepath.Join(dir, ".env"))
	}
	return files
}

// Load reads configuration and validates it.
// Returns E_MISSING_ENV when a required variable is unset.
func Load(opts LoadOpts) (*Config, error) {
	for _, f := range opts.EnvFiles {
		envMap, err := godotenv.Read(f)
		if err != nil {
			continue
		}
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix("eddev")
	v.SetDefault("packagist_url", DefaultPackagistURL)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.EInternal, "failed to read configuration", err)
	}

	cfg.ProjectsPath = expandHome(strings.TrimSpace(cfg.ProjectsPath), opts.HomeDir)
	cfg.CloneDir = expandHome(strings.TrimSpace(cfg.CloneDir), opts.HomeDir)
	cfg.PackagistURL = strings.TrimRight(cfg.PackagistURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"default_projects_path",
		"github_token",
		"clone_dir",
		"packagist_url",
		"github_api_url",
		"log",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Validate ensures required fields are present.
func (c *Config) Validate() error {
	if c.ProjectsPath == "" {
		return errors.NewWithDetails(errors.EMissingEnv,
			"environment value "+EnvProjectsPath+" must be defined",
			map[string]string{"hint": "set it in your shell or in a .env file"})
	}
	if !filepath.IsAbs(c.ProjectsPath) {
		return errors.New(errors.EInvalidOption, EnvProjectsPath+" must be an absolute path")
	}
	if c.PackagistURL == "" {
		return errors.New(errors.EMissingEnv, "environment value "+EnvPackagistURL+" must not be empty")
	}
	return nil
}

// RequireGitHubToken returns the GitHub token or E_MISSING_ENV.
func (c *Config) RequireGitHubToken() (string, error) {
	if c.GitHubToken == "" {
		return "", errors.NewWithDetails(errors.EMissingEnv,
			"environment value "+EnvGitHubToken+" must be defined to resolve pull requests",
			map[string]string{"hint": "create a token with read access to public repositories"})
	}
	return c.GitHubToken, nil
}

// ProjectRoot returns the root directory for an environment name.
func (c *Config) ProjectRoot(envName string) string {
	return filepath.Join(c.ProjectsPath, envName)
}

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
