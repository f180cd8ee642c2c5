// Package models provides data structures used throughout querykit.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueryKind is the statement kind derived from a query's leading keyword.
// The numeric values are part of the external contract.
type QueryKind int

const (
	KindUnknown QueryKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindCreate
	KindDrop
	KindAlter
	KindShow
	KindDescribe
	KindExplain
)

var kindNames = [...]string{
	KindUnknown:  "UNKNOWN",
	KindSelect:   "SELECT",
	KindInsert:   "INSERT",
	KindUpdate:   "UPDATE",
	KindDelete:   "DELETE",
	KindCreate:   "CREATE",
	KindDrop:     "DROP",
	KindAlter:    "ALTER",
	KindShow:     "SHOW",
	KindDescribe: "DESCRIBE",
	KindExplain:  "EXPLAIN",
}

// String returns the upper-case keyword of the kind.
func (k QueryKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Valid reports whether k is one of the defined kinds.
func (k QueryKind) Valid() bool {
	return k >= 0 && int(k) < len(kindNames)
}

// MarshalText encodes the kind by name.
func (k QueryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name case-insensitively.
func (k *QueryKind) UnmarshalText(text []byte) error {
	kind, err := ParseQueryKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseQueryKind returns the kind with the given name, ignoring case.
func ParseQueryKind(name string) (QueryKind, error) {
	name = strings.TrimSpace(name)
	for i, n := range kindNames {
		if strings.EqualFold(n, name) {
			return QueryKind(i), nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown query kind %q", name)
}

// ParseResult is the outcome of a parse request. Error and ErrorCode are
// either both present or both absent.
type ParseResult struct {
	IsValid         bool           `json:"is_valid"`
	QueryType       QueryKind      `json:"-"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       *int           `json:"error_code,omitempty"`
	NormalizedQuery string         `json:"normalized_query,omitempty"`
	ParameterCount  int            `json:"parameter_count"`
	Explain         *ExplainResult `json:"explain,omitempty"`
}

// MarshalJSON encodes the query type by its numeric value.
func (r ParseResult) MarshalJSON() ([]byte, error) {
	type plain ParseResult
	return json.Marshal(struct {
		plain
		QueryType int `json:"query_type"`
	}{plain(r), int(r.QueryType)})
}

// SetError records a failure message together with its engine code.
func (r *ParseResult) SetError(message string, code int) {
	r.IsValid = false
	r.Error = message
	r.ErrorCode = &code
}

// PreparedInfo describes a statement the engine accepted.
type PreparedInfo struct {
	ParameterCount int  `json:"parameter_count"`
	CountReported  bool `json:"count_reported"`
}
