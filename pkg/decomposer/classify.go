// Package decomposer splits SELECT statements into clause components and
// rebuilds them. It is a keyword scanner, not a grammar: parentheses, quoting,
// subqueries and comments are not understood.
package decomposer

import (
	"github.com/TFMV/querykit/pkg/models"
)

// leadingKeywords is checked in order; the first prefix match wins.
var leadingKeywords = []struct {
	keyword string
	kind    models.QueryKind
}{
	{"SELECT", models.KindSelect},
	{"INSERT", models.KindInsert},
	{"UPDATE", models.KindUpdate},
	{"DELETE", models.KindDelete},
	{"CREATE", models.KindCreate},
	{"DROP", models.KindDrop},
	{"ALTER", models.KindAlter},
	{"SHOW", models.KindShow},
	{"DESCRIBE", models.KindDescribe},
	{"EXPLAIN", models.KindExplain},
}

// Classify returns the kind of query from its leading keyword.
//
// Only a fixed-length prefix is compared, so "SELECTED" classifies as a
// SELECT.
func Classify(query string) models.QueryKind {
	q := query[skipSpace(query, 0):]
	for _, lk := range leadingKeywords {
		if hasPrefixFold(q, lk.keyword) {
			return lk.kind
		}
	}
	return models.KindUnknown
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// isSpace matches the C locale whitespace set.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && equalFoldASCII(s[:len(prefix)], prefix)
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
