package models

import (
	"github.com/go-viper/mapstructure/v2"

	"github.com/TFMV/querykit/pkg/errors"
)

// TableRef is one entry of a FROM list. An empty Alias means none.
type TableRef struct {
	Name  string `json:"table" mapstructure:"table"`
	Alias string `json:"alias" mapstructure:"alias"`
}

// Components is the clause-by-clause decomposition of a statement.
// Only the containers filled by the decomposer are meaningful; the rest stay
// empty and callers must not read clause presence from them.
type Components struct {
	Kind            QueryKind  `json:"type" mapstructure:"type"`
	Fields          []string   `json:"fields" mapstructure:"fields"`
	Tables          []TableRef `json:"tables" mapstructure:"tables"`
	Joins           []string   `json:"joins" mapstructure:"joins"`
	WhereConditions []string   `json:"where_conditions" mapstructure:"where_conditions"`
	GroupBy         []string   `json:"group_by" mapstructure:"group_by"`
	Having          []string   `json:"having" mapstructure:"having"`
	OrderBy         []string   `json:"order_by" mapstructure:"order_by"`
	LimitClause     []string   `json:"limit_clause" mapstructure:"limit_clause"`
	Values          []string   `json:"values" mapstructure:"values"`
	Parameters      []string   `json:"parameters" mapstructure:"parameters"`
}

// NewComponents returns an empty record of the given kind.
func NewComponents(kind QueryKind) *Components {
	c := &Components{Kind: kind}
	c.normalize()
	return c
}

// normalize replaces nil containers with empty ones so that every key
// encodes as a list.
func (c *Components) normalize() {
	for _, s := range []*[]string{
		&c.Fields, &c.Joins, &c.WhereConditions, &c.GroupBy, &c.Having,
		&c.OrderBy, &c.LimitClause, &c.Values, &c.Parameters,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
	if c.Tables == nil {
		c.Tables = []TableRef{}
	}
}

// ToMap returns the keyed external representation.
func (c *Components) ToMap() map[string]any {
	tables := make([]map[string]any, 0, len(c.Tables))
	for _, t := range c.Tables {
		tables = append(tables, map[string]any{
			"table": t.Name,
			"alias": t.Alias,
		})
	}

	return map[string]any{
		"type":             c.Kind.String(),
		"fields":           copyStrings(c.Fields),
		"tables":           tables,
		"joins":            copyStrings(c.Joins),
		"where_conditions": copyStrings(c.WhereConditions),
		"group_by":         copyStrings(c.GroupBy),
		"having":           copyStrings(c.Having),
		"order_by":         copyStrings(c.OrderBy),
		"limit_clause":     copyStrings(c.LimitClause),
		"values":           copyStrings(c.Values),
		"parameters":       copyStrings(c.Parameters),
	}
}

// ComponentsFromMap decodes the keyed external representation. The "type"
// key is required; it may be a kind name in any case or its numeric value.
func ComponentsFromMap(m map[string]any) (*Components, error) {
	raw, ok := m["type"]
	if !ok || raw == nil {
		return nil, errors.ErrInvalidComponents.WithDetail("reason", "missing type")
	}

	var c Components
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "invalid components")
	}
	if !c.Kind.Valid() {
		return nil, errors.ErrInvalidComponents.WithDetail("type", raw)
	}

	c.normalize()
	return &c, nil
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
