// Package scaffold holds the files eddev lays over a freshly created
// project: a static tree embedded in the binary and ddev overlays generated
// per environment.
package scaffold

import (
	"embed"
	iofs "io/fs"
	"path/filepath"

	"github.com/NielsdaWheelz/eddev/internal/fs"
)

const templateRoot = "copy-to-project"

//go:embed all:copy-to-project
var projectFiles embed.FS

// ProjectFiles returns the static project tree rooted at its top directory.
func ProjectFiles() iofs.FS {
	sub, err := iofs.Sub(projectFiles, templateRoot)
	if err != nil {
		// templateRoot is embedded above; Sub only fails on an invalid path.
		panic(err)
	}
	return sub
}

// OverlayProject copies the static project tree over root, replacing files
// that already exist, then makes sure the generated files are git-ignored.
func OverlayProject(fsys fs.FS, root string) (GitignoreResult, error) {
	if err := fs.Mirror(fsys, projectFiles, templateRoot, root); err != nil {
		return "", err
	}
	return EnsureGitignore(fsys, filepath.Join(root, ".gitignore"), IgnoredEntries...)
}
