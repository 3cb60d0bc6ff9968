package webmonitor

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
)

// No HTML-parsing library was available in the retrieved example pack,
// so title/text extraction is regex-based rather than a DOM
// walk -- adequate for the hash-compare-and-preview use case this package
// serves, at the cost of not handling malformed markup as gracefully as a
// real parser would.

var (
	titleTagRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// ExtractTitle returns the document's <title> text, HTML-unescaped and
// trimmed, or "" if no title tag is present.
func ExtractTitle(rawHTML string) string {
	m := titleTagRe.FindStringSubmatch(rawHTML)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(collapseWhitespace(m[1])))
}

// ExtractText strips script/style blocks and every remaining tag, then
// collapses whitespace, producing a readable-text approximation of the
// page body.
func ExtractText(rawHTML string) string {
	stripped := scriptStyleRe.ReplaceAllString(rawHTML, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapseWhitespace(html.UnescapeString(stripped)))
}

func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

// ContentHash returns the first 16 hex characters of text's SHA-256, half
// the 32 that codeindex.ContentHash keeps (a shorter digest suffices for
// change detection against a single URL's history).
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
