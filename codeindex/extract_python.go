package codeindex

import (
	"path"
	"regexp"
	"strings"
)

var (
	pyFuncRe   = regexp.MustCompile(`^(\s*)def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(?:->\s*([^:]+?))?\s*:`)
	pyClassRe  = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?\s*:`)
	pyImportRe = regexp.MustCompile(`^import\s+([\w.]+(?:\s*,\s*[\w.]+)*)`)
	pyFromRe   = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)`)
	pyCallRe   = regexp.MustCompile(`\b([A-Za-z_][\w.]*)\s*\(`)
)

// pyControlWords are identifiers that precede "(" but aren't function
// calls worth graphing (control flow and common builtins create noise).
var pyControlWords = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "return": true,
	"print": true, "len": true, "super": true, "isinstance": true,
	"range": true, "yield": true, "with": true, "except": true,
}

// extractPython regex-scans Python source line by line, recovering the
// same entity/edge shape the original tree-sitter extractor produced
// (Module, File, Import, Class, Function, BELONGS_TO/CONTAINS/CALLS).
func extractPython(content, filePath, repo string) ([]CodeEntity, []CodeEdge) {
	lines := strings.Split(content, "\n")

	dirPath := path.Dir(filePath)
	fileName := path.Base(filePath)
	if dirPath == "." {
		dirPath = ""
	}

	moduleName := strings.TrimSuffix(fileName, ".py")
	if fileName == "__init__.py" {
		if dirPath != "" {
			moduleName = path.Base(dirPath)
		} else {
			moduleName = repo
		}
	}
	modulePath := moduleName
	if dirPath != "" {
		modulePath = strings.ReplaceAll(dirPath, "/", ".") + "." + moduleName
	}

	moduleEntity := CodeEntity{
		EntityID:       GenerateEntityID(repo, filePath, moduleName, "module"),
		Name:           moduleName,
		EntityType:     EntityModule,
		FilePath:       filePath,
		LineStart:      1,
		LineEnd:        len(lines),
		Language:       "python",
		Repo:           repo,
		ModuleName:     moduleName,
		ModulePath:     modulePath,
		ExtractionMode: "regex_scan",
	}

	fileEntity := CodeEntity{
		EntityID:       GenerateEntityID(repo, filePath, fileName, "file"),
		Name:           fileName,
		EntityType:     EntityFile,
		FilePath:       filePath,
		LineStart:      1,
		LineEnd:        len(lines),
		Language:       "python",
		Repo:           repo,
		Signature:      fileName,
		ModuleName:     moduleName,
		ModulePath:     modulePath,
		ExtractionMode: "regex_scan",
	}

	entities := []CodeEntity{moduleEntity, fileEntity}
	edges := []CodeEdge{{
		EdgeID:       GenerateEdgeID(fileEntity.EntityID, moduleEntity.EntityID, EdgeBelongsTo),
		FromEntityID: fileEntity.EntityID,
		ToEntityID:   moduleEntity.EntityID,
		EdgeType:     EdgeBelongsTo,
		FilePath:     filePath,
		LineNumber:   1,
	}}

	currentFuncIdx := -1
	var funcIndent int

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if currentFuncIdx >= 0 {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent <= funcIndent {
				currentFuncIdx = -1
			} else if trimmed != "" {
				callerID := entities[currentFuncIdx].EntityID
				for _, m := range pyCallRe.FindAllStringSubmatch(line, -1) {
					name := m[1]
					if pyControlWords[name] {
						continue
					}
					edges = append(edges, CodeEdge{
						EdgeID:       GenerateEdgeID(callerID, name, EdgeCalls),
						FromEntityID: callerID,
						ToEntityID:   name,
						EdgeType:     EdgeCalls,
						FilePath:     filePath,
						LineNumber:   lineNo,
					})
				}
			}
		}

		if m := pyImportRe.FindStringSubmatch(trimmed); m != nil {
			for _, name := range strings.Split(m[1], ",") {
				name = strings.TrimSpace(name)
				entities = append(entities, CodeEntity{
					EntityID:       GenerateEntityID(repo, filePath, "import:"+name, ""),
					Name:           name,
					EntityType:     EntityImport,
					FilePath:       filePath,
					LineStart:      lineNo,
					LineEnd:        lineNo,
					Language:       "python",
					Repo:           repo,
					Signature:      trimmed,
					ModuleName:     moduleName,
					ModulePath:     modulePath,
					ExtractionMode: "regex_scan",
				})
			}
			continue
		}

		if m := pyFromRe.FindStringSubmatch(trimmed); m != nil {
			entities = append(entities, CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, "import:"+m[1], ""),
				Name:           m[1],
				EntityType:     EntityImport,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        lineNo,
				Language:       "python",
				Repo:           repo,
				Signature:      trimmed,
				ModuleName:     moduleName,
				ModulePath:     modulePath,
				ExtractionMode: "regex_scan",
			})
			continue
		}

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			endLine := blockEnd(lines, i, len(m[1]))
			entity := CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, m[2], "class"),
				Name:           m[2],
				EntityType:     EntityClass,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        endLine + 1,
				Language:       "python",
				Repo:           repo,
				Signature:      trimmed,
				Docstring:      pyDocstring(lines, i),
				ModuleName:     moduleName,
				ModulePath:     modulePath,
				ExtractionMode: "regex_scan",
			}
			entities = append(entities, entity)
			edges = append(edges, CodeEdge{
				EdgeID:       GenerateEdgeID(fileEntity.EntityID, entity.EntityID, EdgeContains),
				FromEntityID: fileEntity.EntityID,
				ToEntityID:   entity.EntityID,
				EdgeType:     EdgeContains,
				FilePath:     filePath,
				LineNumber:   lineNo,
			})
			continue
		}

		if m := pyFuncRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			endLine := blockEnd(lines, i, indent)
			entity := CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, m[2], m[3]),
				Name:           m[2],
				EntityType:     EntityFunction,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        endLine + 1,
				Language:       "python",
				Repo:           repo,
				Signature:      trimmed,
				Params:         strings.TrimSpace(m[3]),
				ReturnType:     strings.TrimSpace(m[4]),
				Docstring:      pyDocstring(lines, i),
				ModuleName:     moduleName,
				ModulePath:     modulePath,
				ExtractionMode: "regex_scan",
			}
			entities = append(entities, entity)
			edges = append(edges, CodeEdge{
				EdgeID:       GenerateEdgeID(fileEntity.EntityID, entity.EntityID, EdgeContains),
				FromEntityID: fileEntity.EntityID,
				ToEntityID:   entity.EntityID,
				EdgeType:     EdgeContains,
				FilePath:     filePath,
				LineNumber:   lineNo,
			})
			currentFuncIdx = len(entities) - 1
			funcIndent = indent
		}
	}

	return entities, edges
}

// blockEnd scans forward from a def/class header at the given indent,
// returning the index of the last line still inside that block (a line is
// "inside" until a non-blank line at or below the header's indent appears).
func blockEnd(lines []string, headerIdx, headerIndent int) int {
	last := headerIdx
	for i := headerIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		indent := len(lines[i]) - len(strings.TrimLeft(lines[i], " \t"))
		if indent <= headerIndent {
			break
		}
		last = i
	}
	return last
}

// pyDocstring returns the first triple-quoted string immediately following
// a def/class header line, or "" if none is present.
func pyDocstring(lines []string, headerIdx int) string {
	for i := headerIdx + 1; i < len(lines) && i < headerIdx+3; i++ {
		trimmed := strings.TrimSpace(lines[i])
		for _, quote := range []string{`"""`, `'''`} {
			if strings.HasPrefix(trimmed, quote) {
				body := strings.TrimPrefix(trimmed, quote)
				if end := strings.Index(body, quote); end >= 0 {
					return strings.TrimSpace(body[:end])
				}
				var b strings.Builder
				b.WriteString(body)
				for j := i + 1; j < len(lines) && j < i+20; j++ {
					if end := strings.Index(lines[j], quote); end >= 0 {
						b.WriteString(" " + lines[j][:end])
						return strings.TrimSpace(b.String())
					}
					b.WriteString(" " + lines[j])
				}
				return strings.TrimSpace(b.String())
			}
		}
		return ""
	}
	return ""
}
