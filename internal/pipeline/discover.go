package pipeline

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/madeindigio/codesearch/internal/lang"
)

// defaultExcludeDirs mirrors the teacher's indexer.DefaultExcludePatterns,
// trimmed to the directory names that matter once file filtering is done by
// registered language extension rather than a language enum.
var defaultExcludeDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "vendor": true, "dist": true, "build": true, "out": true, "bin": true,
	".venv": true, "venv": true, "__pycache__": true, ".tox": true, ".mypy_cache": true, ".pytest_cache": true,
	"target": true, ".terraform": true, ".idea": true, ".vscode": true,
}

// Discover walks rootPath (the single-stage, parallelism-1 "Discover" step
// of §4.3) and returns every file path, relative to rootPath, whose
// extension is claimed by a registered language provider.
func Discover(rootPath string, registry *lang.Registry) ([]string, error) {
	var out []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if defaultExcludeDirs[d.Name()] || (strings.HasPrefix(d.Name(), ".") && d.Name() != ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if _, ok := registry.ForExtension(ext); !ok {
			return nil
		}
		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
