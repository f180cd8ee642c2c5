package decomposer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected models.QueryKind
	}{
		{"leading whitespace lower case", "   select name from t", models.KindSelect},
		{"insert", "insert into t values (1)", models.KindInsert},
		{"update", "UPDATE t SET a = 1", models.KindUpdate},
		{"delete", "Delete FROM t", models.KindDelete},
		{"create", "CREATE TABLE t (a int)", models.KindCreate},
		{"drop", "drop table t", models.KindDrop},
		{"alter", "ALTER TABLE t ADD b int", models.KindAlter},
		{"show", "show tables", models.KindShow},
		{"describe after tabs", "\n\tDescribe t", models.KindDescribe},
		{"explain", "EXPLAIN SELECT 1", models.KindExplain},
		{"unknown word", "frobnicate", models.KindUnknown},
		{"empty", "", models.KindUnknown},
		{"whitespace only", "   \t", models.KindUnknown},
		{"truncated keyword", "sel", models.KindUnknown},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", models.KindUnknown},
		{"prefix misclassification", "SELECTED * FROM t", models.KindSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.query))
		})
	}
}

func TestFindKeyword(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keyword  string
		expected int
	}{
		{"inside longer identifier", "WHEREVER x = 1", "WHERE", -1},
		{"word bounded", "SELECT 1 WHERE x=1", "WHERE", 9},
		{"case insensitive", "select a from t", "FROM", 9},
		{"followed by paren", "select count(*) from(t)", "FROM", 16},
		{"followed by comma", "a from, b", "FROM", 2},
		{"followed by semicolon", "a from;", "FROM", 2},
		{"at end of text", "x from", "FROM", 2},
		{"at start of text", "FROM t", "FROM", 0},
		{"preceded by comma", "a,FROM x", "FROM", -1},
		{"skips rejected candidate", "xfrom from y", "FROM", 6},
		{"suffix of identifier", "SELECT a FROM t_limit", "LIMIT", -1},
		{"two word keyword", "SELECT a FROM t GROUP BY a", "GROUP BY", 16},
		{"two word keyword double space", "SELECT a FROM t GROUP  BY a", "GROUP BY", -1},
		{"tab boundary", "SELECT\ta\tFROM\tt", "FROM", 9},
		{"keyword longer than text", "FRO", "FROM", -1},
		{"empty keyword", "SELECT", "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindKeyword(tt.text, tt.keyword))
		})
	}
}

func TestParseFieldList(t *testing.T) {
	tests := []struct {
		name     string
		span     string
		expected []string
	}{
		{"simple", " a, b ", []string{"a", "b"}},
		{"single", " * ", []string{"*"}},
		{"parenthesis blind", " SUM(a,b) ", []string{"SUM(a", "b)"}},
		{"adjacent commas dropped", " a,,b ", []string{"a", "b"}},
		{"leading and trailing commas", ",a,", []string{"a"}},
		{"whitespace piece kept empty", " a, ,b", []string{"a", "", "b"}},
		{"empty span", "", []string{}},
		{"expressions", " a + 1 AS x,\tUPPER(name) ", []string{"a + 1 AS x", "UPPER(name)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseFieldList(tt.span))
		})
	}
}

func TestParseTableList(t *testing.T) {
	tests := []struct {
		name     string
		span     string
		expected []models.TableRef
	}{
		{
			name:     "explicit and missing alias",
			span:     " t1, t2 AS x",
			expected: []models.TableRef{{Name: "t1"}, {Name: "t2", Alias: "x"}},
		},
		{
			name:     "implicit alias",
			span:     " users u ",
			expected: []models.TableRef{{Name: "users", Alias: "u"}},
		},
		{
			name:     "qualified name",
			span:     " db.t1",
			expected: []models.TableRef{{Name: "db.t1"}},
		},
		{
			name:     "lower case as is not an alias keyword",
			span:     "t as x",
			expected: []models.TableRef{{Name: "t as", Alias: "x"}},
		},
		{
			name:     "last space wins",
			span:     "t  x",
			expected: []models.TableRef{{Name: "t ", Alias: "x"}},
		},
		{
			name:     "explicit alias keeps remainder",
			span:     "t AS x y",
			expected: []models.TableRef{{Name: "t", Alias: "x y"}},
		},
		{
			name:     "empty span",
			span:     "",
			expected: []models.TableRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTableList(tt.span))
		})
	}
}

func TestDecompose_FieldsAndTables(t *testing.T) {
	c := Decompose("SELECT a, b FROM t1, t2 AS x")

	assert.Equal(t, models.KindSelect, c.Kind)
	assert.Equal(t, []string{"a", "b"}, c.Fields)
	assert.Equal(t, []models.TableRef{
		{Name: "t1", Alias: ""},
		{Name: "t2", Alias: "x"},
	}, c.Tables)
	assert.Empty(t, c.WhereConditions)
	assert.Empty(t, c.OrderBy)
	assert.Empty(t, c.LimitClause)
}

func TestDecompose_AllClauses(t *testing.T) {
	c := Decompose("SELECT id, name FROM users u WHERE active = 1 ORDER BY name LIMIT 10")

	assert.Equal(t, []string{"id", "name"}, c.Fields)
	assert.Equal(t, []models.TableRef{{Name: "users", Alias: "u"}}, c.Tables)
	assert.Equal(t, []string{" active = 1 "}, c.WhereConditions)
	assert.Equal(t, []string{" name "}, c.OrderBy)
	assert.Equal(t, []string{" 10"}, c.LimitClause)
}

func TestDecompose_GroupByAndHavingStayEmpty(t *testing.T) {
	c := Decompose("SELECT dept, COUNT(*) FROM emp WHERE x > 1 GROUP BY dept HAVING COUNT(*) > 2 ORDER BY dept LIMIT 5")

	assert.Equal(t, []string{"dept", "COUNT(*)"}, c.Fields)
	assert.Equal(t, []models.TableRef{{Name: "emp"}}, c.Tables)
	assert.Equal(t, []string{" x > 1 "}, c.WhereConditions)
	assert.Empty(t, c.GroupBy)
	assert.Empty(t, c.Having)
	assert.Equal(t, []string{" dept "}, c.OrderBy)
	assert.Equal(t, []string{" 5"}, c.LimitClause)
}

func TestDecompose_SumRegression(t *testing.T) {
	c := Decompose("SELECT SUM(a,b) FROM t")
	assert.Equal(t, []string{"SUM(a", "b)"}, c.Fields)
	assert.Equal(t, []models.TableRef{{Name: "t"}}, c.Tables)
}

func TestDecompose_NoFrom(t *testing.T) {
	c := Decompose("SELECT 1 WHERE x=1")
	assert.Empty(t, c.Fields)
	assert.Empty(t, c.Tables)
	assert.Equal(t, []string{" x=1"}, c.WhereConditions)
}

func TestDecompose_EmptySelectList(t *testing.T) {
	c := Decompose("SELECT FROM t")
	assert.Equal(t, []string{""}, c.Fields)
	assert.Equal(t, []models.TableRef{{Name: "t"}}, c.Tables)
}

func TestDecompose_TableSpanEndsAtGroupBy(t *testing.T) {
	c := Decompose("select a from t group by a limit 3")
	assert.Equal(t, []models.TableRef{{Name: "t"}}, c.Tables)
	assert.Empty(t, c.GroupBy)
	assert.Equal(t, []string{" 3"}, c.LimitClause)
}

func TestDecompose_OutOfOrderClauses(t *testing.T) {
	var c *models.Components
	require.NotPanics(t, func() {
		c = Decompose("SELECT a FROM t ORDER BY b WHERE c")
	})

	assert.Equal(t, []models.TableRef{{Name: "t ORDER BY", Alias: "b"}}, c.Tables)
	assert.Equal(t, []string{" c"}, c.WhereConditions)
	assert.Equal(t, []string{" b WHERE c"}, c.OrderBy)
}

func TestDecompose_NonSelectKinds(t *testing.T) {
	for _, q := range []string{
		"INSERT INTO t (a) VALUES (1)",
		"UPDATE t SET a = 1 WHERE b = 2",
		"DELETE FROM t WHERE a = 1",
		"frobnicate FROM x",
	} {
		t.Run(q, func(t *testing.T) {
			c := Decompose(q)
			assert.Equal(t, Classify(q), c.Kind)
			assert.Empty(t, c.Fields)
			assert.Empty(t, c.Tables)
			assert.Empty(t, c.WhereConditions)
			assert.NotNil(t, c.Values)
		})
	}
}

func TestDecompose_FreshRecordPerCall(t *testing.T) {
	first := Decompose("SELECT a FROM t")
	first.Fields[0] = "mutated"

	second := Decompose("SELECT a FROM t")
	assert.Equal(t, []string{"a"}, second.Fields)
}

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{"none", "SELECT 1", 0},
		{"empty", "", 0},
		{"single", "SELECT ?", 1},
		{"several", "SELECT * FROM t WHERE a = ? AND b = ?", 2},
		{"quoted marker ignored", "SELECT '?' , ?", 1},
		{"double quoted and backticks", "SELECT \"a?\" FROM `b?` WHERE c = ?", 1},
		{"doubled quote", "SELECT 'it''s ?', ?", 1},
		{"backslash escape", "SELECT 'a\\'?', ?", 1},
		{"numbered distinct", "SELECT $1, $2, $1", 2},
		{"bare dollar", "SELECT $ FROM t", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CountPlaceholders(tt.query))
		})
	}
}
