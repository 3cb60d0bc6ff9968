package webmonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitle_FindsAndUnescapes(t *testing.T) {
	html := `<html><head><title>Foo &amp; Bar</title></head><body></body></html>`
	assert.Equal(t, "Foo & Bar", ExtractTitle(html))
}

func TestExtractTitle_Missing(t *testing.T) {
	assert.Equal(t, "", ExtractTitle(`<html><body>no title here</body></html>`))
}

func TestExtractText_StripsScriptStyleAndTags(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style><script>alert(1)</script></head>` +
		`<body><h1>Hello</h1><p>World &amp; friends</p></body></html>`
	text := ExtractText(html)
	assert.Equal(t, "Hello World & friends", text)
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	html := "<p>line one</p>\n\n<p>   line  two</p>"
	assert.Equal(t, "line one line two", ExtractText(html))
}

func TestContentHash_DeterministicAndLength(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
	assert.Len(t, ContentHash("abc"), 16)
}
