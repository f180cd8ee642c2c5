package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMotherDuckDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"md:analytics", true},
		{"md:", true},
		{"motherduck://analytics", true},
		{"duckdb://motherduck/analytics", true},
		{"duckdb://other/db", false},
		{"/tmp/local.duckdb", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMotherDuckDSN(tt.dsn), tt.dsn)
	}
}

func TestNormalizeMotherDuckDSN(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"motherduck://analytics", "md:analytics"},
		{"motherduck://", "md:"},
		{"motherduck://analytics/main", "md:analytics/main"},
		{"duckdb://motherduck/analytics", "md:analytics"},
		{"duckdb://motherduck/analytics?saas_mode=true", "md:analytics?saas_mode=true"},
		{"md:analytics", "md:analytics"},
		{"duckdb://other/db", "duckdb://other/db"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMotherDuckDSN(tt.input), tt.input)
	}
}

func TestInjectMotherDuckToken(t *testing.T) {
	tests := []struct {
		name  string
		dsn   string
		token string
		want  string
	}{
		{"adds token", "md:analytics", "tok", "md:analytics?motherduck_token=tok"},
		{"keeps other parameters", "md:analytics?saas_mode=true", "tok", "md:analytics?motherduck_token=tok&saas_mode=true"},
		{"existing token wins", "md:analytics?motherduck_token=mine", "tok", "md:analytics?motherduck_token=mine"},
		{"empty token", "md:analytics", "", "md:analytics"},
		{"not motherduck", "/tmp/local.duckdb", "tok", "/tmp/local.duckdb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InjectMotherDuckToken(tt.dsn, tt.token))
		})
	}
}

func TestDuckDB_NormalizeDSN(t *testing.T) {
	var n DSNNormalizer = DuckDB{}
	assert.Equal(t, "md:analytics", n.NormalizeDSN("motherduck://analytics"))
	assert.Equal(t, "", n.NormalizeDSN(""))

	_, ok := Dialect(MySQL{}).(DSNNormalizer)
	assert.False(t, ok)
}
