package composer

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/NielsdaWheelz/eddev/internal/fs"
)

// ManifestFile is the Composer manifest name.
const ManifestFile = "composer.json"

// Fork is a pull request branch to install in place of a package.
type Fork struct {
	Package string
	URL     string
	Branch  string
}

// Constraint is the version constraint that selects the fork's branch.
func (f Fork) Constraint() string {
	return "dev-" + f.Branch
}

type repository struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// AddForks declares each fork as a vcs repository in root's composer.json
// and requires its branch. Existing repositories with the same URL are not
// duplicated. The file is rewritten atomically; top-level keys are written
// in sorted order.
func AddForks(fsys fs.FS, root string, forks []Fork) error {
	if len(forks) == 0 {
		return nil
	}
	path := filepath.Join(root, ManifestFile)
	data, err := fsys.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if manifest == nil {
		manifest = map[string]json.RawMessage{}
	}

	repos, err := parseRepositories(manifest["repositories"])
	if err != nil {
		return fmt.Errorf("parse %s repositories: %w", path, err)
	}
	require := map[string]json.RawMessage{}
	if raw, ok := manifest["require"]; ok {
		if err := json.Unmarshal(raw, &require); err != nil {
			return fmt.Errorf("parse %s require: %w", path, err)
		}
	}

	for _, f := range forks {
		if err := repos.add(f); err != nil {
			return err
		}
		raw, err := json.Marshal(f.Constraint())
		if err != nil {
			return err
		}
		require[f.Package] = raw
	}

	if manifest["repositories"], err = repos.marshal(); err != nil {
		return err
	}
	if manifest["require"], err = json.Marshal(require); err != nil {
		return err
	}
	return fs.WriteJSONAtomic(fsys, path, manifest, 0o644)
}

// repositories is the "repositories" key, which Composer allows to be a
// list or an object keyed by name.
type repositories struct {
	list  []json.RawMessage
	named map[string]json.RawMessage
}

func parseRepositories(raw json.RawMessage) (*repositories, error) {
	r := &repositories{}
	if len(raw) == 0 || string(raw) == "null" {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r.list); err == nil {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r.named); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *repositories) add(f Fork) error {
	for _, raw := range r.all() {
		var existing repository
		if json.Unmarshal(raw, &existing) == nil && existing.URL == f.URL {
			return nil
		}
	}
	raw, err := json.Marshal(repository{Type: "vcs", URL: f.URL})
	if err != nil {
		return err
	}
	if r.named != nil {
		r.named[f.Package] = raw
		return nil
	}
	r.list = append(r.list, raw)
	return nil
}

func (r *repositories) all() []json.RawMessage {
	if r.named == nil {
		return r.list
	}
	out := make([]json.RawMessage, 0, len(r.named))
	for _, raw := range r.named {
		out = append(out, raw)
	}
	return out
}

func (r *repositories) marshal() (json.RawMessage, error) {
	if r.named != nil {
		return json.Marshal(r.named)
	}
	return json.Marshal(r.list)
}
