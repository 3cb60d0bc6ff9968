package codeindex

import (
	"path"
	"regexp"
	"strings"
)

var (
	sqlTableRe    = regexp.MustCompile(`(?i)^create\s+(?:or\s+replace\s+)?table\s+(?:if\s+not\s+exists\s+)?([\w."]+)`)
	sqlViewRe     = regexp.MustCompile(`(?i)^create\s+(?:or\s+replace\s+)?(?:materialized\s+)?view\s+([\w."]+)`)
	sqlFunctionRe = regexp.MustCompile(`(?i)^create\s+(?:or\s+replace\s+)?function\s+([\w."]+)\s*\(([^)]*)\)`)
	sqlIndexRe    = regexp.MustCompile(`(?i)^create\s+(?:unique\s+)?index\s+(?:if\s+not\s+exists\s+)?([\w."]+)\s+on\s+([\w."]+)`)
)

// extractSQL regex-scans a .sql file for CREATE TABLE/VIEW/FUNCTION/INDEX
// statements, returning the File entity first and then one entity per
// definition; Extract adds a CONTAINS edge from the file to each
// definition. There is no call-graph equivalent for SQL DDL, so no CALLS
// edges are produced.
func extractSQL(content, filePath, repo string) []CodeEntity {
	lines := strings.Split(content, "\n")
	fileName := path.Base(filePath)

	fileEntity := CodeEntity{
		EntityID:       GenerateEntityID(repo, filePath, fileName, "file"),
		Name:           fileName,
		EntityType:     EntityFile,
		FilePath:       filePath,
		LineStart:      1,
		LineEnd:        len(lines),
		Language:       "sql",
		Repo:           repo,
		Signature:      fileName,
		ExtractionMode: "regex_scan",
	}
	entities := []CodeEntity{fileEntity}

	for i, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		lineNo := i + 1

		switch {
		case sqlTableRe.MatchString(line):
			m := sqlTableRe.FindStringSubmatch(line)
			entities = append(entities, sqlEntity(repo, filePath, m[1], "table", line, lineNo))
		case sqlViewRe.MatchString(line):
			m := sqlViewRe.FindStringSubmatch(line)
			entities = append(entities, sqlEntity(repo, filePath, m[1], "view", line, lineNo))
		case sqlFunctionRe.MatchString(line):
			m := sqlFunctionRe.FindStringSubmatch(line)
			e := sqlEntity(repo, filePath, m[1], "function", line, lineNo)
			e.Params = strings.TrimSpace(m[2])
			entities = append(entities, e)
		case sqlIndexRe.MatchString(line):
			m := sqlIndexRe.FindStringSubmatch(line)
			e := sqlEntity(repo, filePath, m[1], "index", line, lineNo)
			e.Docstring = "on " + m[2]
			entities = append(entities, e)
		}
	}

	return entities
}

func sqlEntity(repo, filePath, name, kind, signature string, lineNo int) CodeEntity {
	name = strings.Trim(name, `"`)
	return CodeEntity{
		EntityID:       GenerateEntityID(repo, filePath, name, kind),
		Name:           name,
		EntityType:     EntityClass, // SQL definitions don't map to Function/Module; nearest structural kind.
		FilePath:       filePath,
		LineStart:      lineNo,
		LineEnd:        lineNo,
		Language:       "sql",
		Repo:           repo,
		Signature:      signature,
		ReceiverType:   kind,
		ExtractionMode: "regex_scan",
	}
}
