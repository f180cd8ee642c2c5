package decomposer

// Clause keywords located by the extractor, in canonical order.
const (
	KeywordSelect  = "SELECT"
	KeywordFrom    = "FROM"
	KeywordWhere   = "WHERE"
	KeywordGroupBy = "GROUP BY"
	KeywordHaving  = "HAVING"
	KeywordOrderBy = "ORDER BY"
	KeywordLimit   = "LIMIT"
)

// FindKeyword returns the byte offset of the first word-bounded,
// case-insensitive occurrence of keyword in text, or -1.
//
// A match must be preceded by the start of text or whitespace and followed by
// whitespace, the end of text, '(', ',' or ';'. Matches inside longer
// identifiers are skipped and the scan continues.
func FindKeyword(text, keyword string) int {
	n := len(keyword)
	if n == 0 {
		return -1
	}
	for i := 0; i+n <= len(text); i++ {
		if !equalFoldASCII(text[i:i+n], keyword) {
			continue
		}
		if i > 0 && !isSpace(text[i-1]) {
			continue
		}
		if i+n == len(text) || isKeywordTerminator(text[i+n]) {
			return i
		}
	}
	return -1
}

func isKeywordTerminator(c byte) bool {
	return isSpace(c) || c == '(' || c == ',' || c == ';'
}
