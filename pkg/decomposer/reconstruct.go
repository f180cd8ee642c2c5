package decomposer

import (
	"fmt"
	"strings"

	"github.com/TFMV/querykit/pkg/models"
)

// InvalidComponentsText is returned when no usable components are given.
const InvalidComponentsText = "/* Invalid components */"

// UnsupportedKindText returns the placeholder for kinds that cannot be
// reconstructed.
func UnsupportedKindText(kind models.QueryKind) string {
	return fmt.Sprintf("/* %s query reconstruction not yet implemented */", kind)
}

// Reconstruct rebuilds a query string from its components. Only SELECT is
// supported; other kinds produce a placeholder comment.
//
// Only the first WHERE, ORDER BY and LIMIT fragment is emitted. Joins, GROUP
// BY, HAVING, values and parameters are never emitted.
func Reconstruct(c *models.Components) string {
	if c == nil {
		return InvalidComponentsText
	}
	if c.Kind != models.KindSelect {
		return UnsupportedKindText(c.Kind)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(c.Fields) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(c.Fields, ", "))
	}

	if len(c.Tables) > 0 {
		b.WriteString(" FROM ")
		for i, t := range c.Tables {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.Name)
			if t.Alias != "" {
				b.WriteString(" AS ")
				b.WriteString(t.Alias)
			}
		}
	}

	writeFirst(&b, " WHERE", c.WhereConditions)
	writeFirst(&b, " ORDER BY", c.OrderBy)
	writeFirst(&b, " LIMIT", c.LimitClause)

	return b.String()
}

// ReconstructMap rebuilds a query from the keyed representation. Input that
// does not decode yields InvalidComponentsText.
func ReconstructMap(m map[string]any) string {
	c, err := models.ComponentsFromMap(m)
	if err != nil {
		return InvalidComponentsText
	}
	return Reconstruct(c)
}

func writeFirst(b *strings.Builder, keyword string, fragments []string) {
	if len(fragments) == 0 {
		return
	}
	b.WriteString(keyword)
	b.WriteString(fragments[0])
}
