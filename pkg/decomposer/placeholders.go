package decomposer

// CountPlaceholders counts bind markers in query: '?' and '$N'. Markers
// inside quoted literals or identifiers are ignored. Repeated '$N' markers
// count once per distinct N.
func CountPlaceholders(query string) int {
	count := 0
	numbered := make(map[string]struct{})

	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]

		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
		case '?':
			count++
		case '$':
			j := i + 1
			for j < len(query) && '0' <= query[j] && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				numbered[query[i+1:j]] = struct{}{}
				i = j - 1
			}
		}
	}

	return count + len(numbered)
}
