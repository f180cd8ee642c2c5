package decomposer

import (
	"github.com/TFMV/querykit/pkg/models"
)

// Decompose classifies query and, for SELECT, extracts its clauses. Other
// kinds return their kind with every container empty.
func Decompose(query string) *models.Components {
	c := models.NewComponents(Classify(query))
	if c.Kind == models.KindSelect {
		ExtractSelect(query, c)
	}
	return c
}
