package codeindex

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CodeExtensions are the extensions passed to the entity extractor
// (spec.md §4 supplemented features, ground on github_sensor.py's
// CODE_EXTENSIONS).
var CodeExtensions = map[string]bool{
	".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
}

// DocExtensions are indexed for file-state tracking; apart from .sql, which
// goes to the SQL extractor, they are never sent to the entity extractor.
var DocExtensions = map[string]bool{
	".md": true, ".yaml": true, ".yml": true, ".json": true,
	".toml": true, ".sql": true, ".sh": true,
}

// allExtensions is CodeExtensions | DocExtensions | a handful of
// config/markup extensions also worth tracking for change detection.
var allExtensions = unionExtra(CodeExtensions, DocExtensions, []string{
	".css", ".html", ".env.example", ".cfg", ".ini",
})

// namedFiles are extension-less filenames always worth indexing.
var namedFiles = map[string]bool{
	"Dockerfile": true, "Makefile": true, "Procfile": true,
}

// excludePatterns are directory names pruned entirely during the walk.
var excludePatterns = map[string]bool{
	"node_modules": true, "venv": true, ".venv": true, "__pycache__": true,
	".git": true, ".mypy_cache": true, ".pytest_cache": true, "dist": true,
	"build": true, ".tox": true, "egg-info": true, ".eggs": true,
}

// languageByExt maps an extension to the extractor's language key.
var languageByExt = map[string]string{
	".py":  "python",
	".ts":  "typescript",
	".tsx": "tsx",
	".js":  "javascript",
	".jsx": "javascript",
	".sql": "sql",
}

func unionExtra(a, b map[string]bool, extra []string) map[string]bool {
	out := make(map[string]bool, len(a)+len(b)+len(extra))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	for _, k := range extra {
		out[k] = true
	}
	return out
}

// maxFileBytes matches github_sensor.py's 500KB skip threshold.
const maxFileBytes = 500_000

// FindFiles walks repoPath, pruning excludePatterns and dot-directories,
// and returns every file whose extension is in allExtensions or whose name
// is one of namedFiles.
func FindFiles(repoPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != repoPath && (excludePatterns[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if allExtensions[ext] || namedFiles[d.Name()] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ReadFile reads path as UTF-8, returning ok=false for files over
// maxFileBytes (treated as binary/oversized and skipped, matching
// github_sensor.py's _read_file).
func ReadFile(path string) (content string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	if len(data) > maxFileBytes {
		return "", false, nil
	}
	return string(data), true, nil
}

// ContentHash returns the first 32 hex characters of the file's SHA-256,
// matching github_sensor.py's change-detection hash.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:32]
}

// LanguageFor resolves the extractor language key for an extension,
// falling back to the bare extension (without the dot) when unmapped.
func LanguageFor(ext string) string {
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}
