package fs

import (
	iofs "io/fs"
	"path"
	"path/filepath"
)

// Mirror copies every directory and regular file under root in src into
// dst, overwriting files that already exist. Files already in dst that are
// not in src are left alone.
func Mirror(fsys FS, src iofs.FS, root, dst string) error {
	return iofs.WalkDir(src, root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel := p
		if root != "." {
			rel = trimRoot(p, root)
		}
		target := filepath.Join(dst, filepath.FromSlash(rel))

		if d.IsDir() {
			return fsys.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := iofs.ReadFile(src, p)
		if err != nil {
			return err
		}
		return fsys.WriteFile(target, data, 0o644)
	})
}

func trimRoot(p, root string) string {
	if p == root {
		return "."
	}
	rel := p[len(path.Clean(root))+1:]
	return rel
}
