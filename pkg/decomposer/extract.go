package decomposer

import (
	"github.com/TFMV/querykit/pkg/models"
)

// clausePositions holds the located keyword offsets of a SELECT, -1 when
// absent.
type clausePositions struct {
	selectPos int
	from      int
	where     int
	groupBy   int
	having    int
	orderBy   int
	limit     int
}

func locateClauses(query string) clausePositions {
	return clausePositions{
		selectPos: FindKeyword(query, KeywordSelect),
		from:      FindKeyword(query, KeywordFrom),
		where:     FindKeyword(query, KeywordWhere),
		groupBy:   FindKeyword(query, KeywordGroupBy),
		having:    FindKeyword(query, KeywordHaving),
		orderBy:   FindKeyword(query, KeywordOrderBy),
		limit:     FindKeyword(query, KeywordLimit),
	}
}

// ExtractSelect fills c from the clauses of a SELECT query.
//
// Fields, tables, WHERE, ORDER BY and LIMIT are populated. GROUP BY is only
// used as a bound and HAVING is located but unused, so both containers stay
// empty. Clause text is stored untrimmed.
func ExtractSelect(query string, c *models.Components) {
	pos := locateClauses(query)

	if pos.selectPos >= 0 && pos.from > pos.selectPos {
		start := pos.selectPos + len(KeywordSelect)
		c.Fields = append(c.Fields, ParseFieldList(query[start:pos.from])...)
	}

	if pos.from >= 0 {
		start := pos.from + len(KeywordFrom)
		end := clauseEnd(query, start, pos.where, pos.groupBy, pos.orderBy, pos.limit)
		c.Tables = append(c.Tables, ParseTableList(query[start:end])...)
	}

	if pos.where >= 0 {
		start := pos.where + len(KeywordWhere)
		end := clauseEnd(query, start, pos.groupBy, pos.orderBy, pos.limit)
		c.WhereConditions = append(c.WhereConditions, query[start:end])
	}

	if pos.orderBy >= 0 {
		start := pos.orderBy + len(KeywordOrderBy)
		end := clauseEnd(query, start, pos.limit)
		c.OrderBy = append(c.OrderBy, query[start:end])
	}

	if pos.limit >= 0 {
		start := pos.limit + len(KeywordLimit)
		c.LimitClause = append(c.LimitClause, query[start:])
	}
}

// clauseEnd returns the first present bound, in the order given, that does
// not lie before start. Without one the clause runs to the end of query.
func clauseEnd(query string, start int, bounds ...int) int {
	for _, b := range bounds {
		if b >= start {
			return b
		}
	}
	return len(query)
}
