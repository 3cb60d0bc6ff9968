package codeindex

import (
	"path"
	"regexp"
	"strings"
)

var (
	tsFuncRe = regexp.MustCompile(
		`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s+([A-Za-z_$][\w$]*)\s*\(([^)]*)\)`)
	tsArrowRe = regexp.MustCompile(
		`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::\s*[^=]+)?=\s*(?:async\s*)?\(([^)]*)\)\s*=>`)
	tsClassRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	tsMethodRe = regexp.MustCompile(`^\s*(?:public|private|protected|static|async)?\s*([A-Za-z_$][\w$]*)\s*\(([^)]*)\)\s*(?::\s*[^{]+)?\{`)
	tsImportRe = regexp.MustCompile(`^\s*import\s+.*?\s+from\s+['"]([^'"]+)['"]`)
)

// extractTypeScript regex-scans TS/TSX/JS source for top-level functions,
// arrow-function assignments, classes, and import specifiers. It is
// intentionally shallower than the Python extractor: it does not descend
// into class bodies for methods beyond a single-level scan, matching the
// original's own TS support being narrower than its Python support.
func extractTypeScript(content, filePath, repo, language string) ([]CodeEntity, []CodeEdge) {
	lines := strings.Split(content, "\n")
	fileName := path.Base(filePath)

	fileEntity := CodeEntity{
		EntityID:       GenerateEntityID(repo, filePath, fileName, "file"),
		Name:           fileName,
		EntityType:     EntityFile,
		FilePath:       filePath,
		LineStart:      1,
		LineEnd:        len(lines),
		Language:       language,
		Repo:           repo,
		Signature:      fileName,
		ExtractionMode: "regex_scan",
	}

	entities := []CodeEntity{fileEntity}
	var edges []CodeEdge

	inClass := false
	classIndent := 0
	currentClassName := ""

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if inClass && trimmed != "" && indent <= classIndent && trimmed != "}" {
			inClass = false
		}

		if m := tsImportRe.FindStringSubmatch(line); m != nil {
			entities = append(entities, CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, "import:"+m[1], ""),
				Name:           m[1],
				EntityType:     EntityImport,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        lineNo,
				Language:       language,
				Repo:           repo,
				Signature:      trimmed,
				ExtractionMode: "regex_scan",
			})
			continue
		}

		if m := tsClassRe.FindStringSubmatch(line); m != nil {
			entity := CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, m[1], "class"),
				Name:           m[1],
				EntityType:     EntityClass,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        lineNo,
				Language:       language,
				Repo:           repo,
				Signature:      trimmed,
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
			inClass = true
			classIndent = indent
			currentClassName = m[1]
			continue
		}

		if inClass {
			if m := tsMethodRe.FindStringSubmatch(line); m != nil && m[1] != "if" && m[1] != "for" && m[1] != "while" && m[1] != "switch" && m[1] != "catch" {
				entity := CodeEntity{
					EntityID:       GenerateEntityID(repo, filePath, m[1], m[2]),
					Name:           m[1],
					EntityType:     EntityFunction,
					FilePath:       filePath,
					LineStart:      lineNo,
					LineEnd:        lineNo,
					Language:       language,
					Repo:           repo,
					Signature:      trimmed,
					Params:         strings.TrimSpace(m[2]),
					ReceiverType:   currentClassName,
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
			}
			continue
		}

		if m := tsFuncRe.FindStringSubmatch(line); m != nil {
			entity := CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, m[1], m[2]),
				Name:           m[1],
				EntityType:     EntityFunction,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        lineNo,
				Language:       language,
				Repo:           repo,
				Signature:      trimmed,
				Params:         strings.TrimSpace(m[2]),
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

		if m := tsArrowRe.FindStringSubmatch(line); m != nil {
			entity := CodeEntity{
				EntityID:       GenerateEntityID(repo, filePath, m[1], m[2]),
				Name:           m[1],
				EntityType:     EntityFunction,
				FilePath:       filePath,
				LineStart:      lineNo,
				LineEnd:        lineNo,
				Language:       language,
				Repo:           repo,
				Signature:      trimmed,
				Params:         strings.TrimSpace(m[2]),
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
		}
	}

	return entities, edges
}
