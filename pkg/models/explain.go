package models

// ExplainResult is the plan an engine returned for an accepted statement.
type ExplainResult struct {
	Backend string `json:"backend"`
	Plan    string `json:"plan"`
	Rows    int    `json:"rows"`
}
