package policyopa

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"memochain/internal/infra/crypto"
)

type policyFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// ComputeBundleHashFromPath fingerprints the rego and data files under path.
func ComputeBundleHashFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return ComputeBundleHashFromFS(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	return ComputeBundleHashFromFS(os.DirFS(path), ".")
}

func ComputeBundleHashFromFS(fsys fs.FS, root string) (string, error) {
	var files []policyFile
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && skipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !isPolicyFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files = append(files, policyFile{Path: filepath.ToSlash(path), SHA256: crypto.Digest(data)})
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	canonical, err := crypto.CanonicalizeAny(map[string]any{"files": files})
	if err != nil {
		return "", err
	}
	return crypto.Digest(canonical), nil
}

func skipDir(path string) bool {
	base := filepath.Base(path)
	return base == "__MACOSX" || base == "vendor" || strings.HasPrefix(base, ".")
}

func isPolicyFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return base == "data.json" || strings.HasSuffix(base, ".rego")
}
