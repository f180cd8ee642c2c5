package engine

import (
	"net/url"
	"strings"
)

const (
	motherDuckPrefix   = "md:"
	motherDuckTokenKey = "motherduck_token"
)

// IsMotherDuckDSN reports whether dsn targets MotherDuck. The md: form and
// the motherduck:// and duckdb://motherduck/ URL forms are recognized.
func IsMotherDuckDSN(dsn string) bool {
	if strings.HasPrefix(dsn, motherDuckPrefix) {
		return true
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return false
	}
	return u.Scheme == "motherduck" || (u.Scheme == "duckdb" && u.Host == "motherduck")
}

// NormalizeMotherDuckDSN rewrites the URL forms of a MotherDuck DSN to the
// md: form opened by the DuckDB driver. Other DSNs are returned unchanged.
func NormalizeMotherDuckDSN(dsn string) string {
	if strings.HasPrefix(dsn, motherDuckPrefix) {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}

	var database string
	switch {
	case u.Scheme == "motherduck":
		database = u.Host + u.Path
	case u.Scheme == "duckdb" && u.Host == "motherduck":
		database = strings.TrimPrefix(u.Path, "/")
	default:
		return dsn
	}

	out := motherDuckPrefix + database
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// InjectMotherDuckToken sets the motherduck_token parameter on a MotherDuck
// DSN. A DSN that already carries a token, or one that does not target
// MotherDuck, is returned unchanged, as is any DSN when token is empty.
func InjectMotherDuckToken(dsn, token string) string {
	if token == "" || !IsMotherDuckDSN(dsn) {
		return dsn
	}
	base, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil || q.Get(motherDuckTokenKey) != "" {
		return dsn
	}
	q.Set(motherDuckTokenKey, token)
	return base + "?" + q.Encode()
}
