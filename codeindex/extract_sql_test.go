package codeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sqlSample = `CREATE TABLE IF NOT EXISTS widgets (
    id BIGSERIAL PRIMARY KEY
);

CREATE INDEX IF NOT EXISTS widgets_id_idx ON widgets (id);

CREATE OR REPLACE FUNCTION widget_count(repo text)
RETURNS INT AS $$ SELECT 1 $$ LANGUAGE sql;
`

func TestExtractSQL_FindsDefinitions(t *testing.T) {
	entities := extractSQL(sqlSample, "schema.sql", "demo")

	var names []string
	for _, e := range entities {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "widgets")
	assert.Contains(t, names, "widgets_id_idx")
	assert.Contains(t, names, "widget_count")
}

func TestExtractSQL_FunctionCapturesParams(t *testing.T) {
	entities := extractSQL(sqlSample, "schema.sql", "demo")
	var fn *CodeEntity
	for i := range entities {
		if entities[i].Name == "widget_count" {
			fn = &entities[i]
		}
	}
	if fn == nil {
		t.Fatal("expected widget_count entity")
	}
	assert.Equal(t, "repo text", fn.Params)
}
