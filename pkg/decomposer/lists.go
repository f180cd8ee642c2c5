package decomposer

import (
	"strings"

	"github.com/TFMV/querykit/pkg/models"
)

// ParseFieldList splits a select list on commas and trims each piece.
// Empty pieces between adjacent commas are dropped; a whitespace-only piece
// yields an empty field. Commas inside parentheses split too.
func ParseFieldList(span string) []string {
	pieces := splitList(span)
	fields := make([]string, 0, len(pieces))
	for _, p := range pieces {
		fields = append(fields, trimSpace(p))
	}
	return fields
}

// ParseTableList splits a FROM list on commas and resolves each alias.
//
// A literal " AS " separates name and alias. Without it the last space does,
// and a piece with no space has no alias. The " AS " match is case-sensitive.
func ParseTableList(span string) []models.TableRef {
	pieces := splitList(span)
	tables := make([]models.TableRef, 0, len(pieces))
	for _, p := range pieces {
		tables = append(tables, parseTableRef(trimSpace(p)))
	}
	return tables
}

func parseTableRef(piece string) models.TableRef {
	if i := strings.Index(piece, " AS "); i > 0 {
		return models.TableRef{Name: piece[:i], Alias: piece[i+len(" AS "):]}
	}
	if i := strings.LastIndexByte(piece, ' '); i > 0 {
		return models.TableRef{Name: piece[:i], Alias: piece[i+1:]}
	}
	return models.TableRef{Name: piece}
}

func splitList(span string) []string {
	var pieces []string
	for _, p := range strings.Split(span, ",") {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}
