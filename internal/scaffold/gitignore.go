package scaffold

import (
	"os"
	"strings"

	"github.com/NielsdaWheelz/eddev/internal/fs"
)

// IgnoredEntries are added to the project's .gitignore after the overlay.
var IgnoredEntries = []string{"/.env", "/silverstripe.log"}

// GitignoreResult indicates what happened to .gitignore.
type GitignoreResult string

const (
	GitignoreUpdated   GitignoreResult = "updated"
	GitignoreUnchanged GitignoreResult = "unchanged"
)

// EnsureGitignore ensures every entry is in .gitignore.
// Creates the file if missing. Does not add duplicate entries.
// Ensures file ends with newline.
//
// Returns the result indicating what action was taken.
func EnsureGitignore(fsys fs.FS, gitignorePath string, entries ...string) (GitignoreResult, error) {
	content, err := fsys.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	existing := string(content)
	newContent := existing
	for _, entry := range entries {
		if hasEntry(newContent, entry) {
			continue
		}
		// Ensure content ends with newline before appending
		if len(newContent) > 0 && !strings.HasSuffix(newContent, "\n") {
			newContent += "\n"
		}
		newContent += entry + "\n"
	}
	if len(newContent) > 0 && !strings.HasSuffix(newContent, "\n") {
		newContent += "\n"
	}

	if newContent == existing && err == nil {
		return GitignoreUnchanged, nil
	}
	if err := fsys.WriteFile(gitignorePath, []byte(newContent), 0644); err != nil {
		return "", err
	}
	return GitignoreUpdated, nil
}

// hasEntry checks if entry already exists in content.
// A leading or trailing slash does not make a pattern different here:
// "/.env", ".env" and ".env/" are treated as equivalent.
func hasEntry(content, entry string) bool {
	want := normalizeEntry(entry)
	for _, line := range strings.Split(content, "\n") {
		if normalizeEntry(line) == want {
			return true
		}
	}
	return false
}

func normalizeEntry(s string) string {
	return strings.Trim(strings.TrimSpace(s), "/")
}
