package core

// MatchPattern reports whether key matches a glob style pattern as used by
// keyspace scans: '*' any sequence (including '/'), '?' any byte, '[...]'
// a class with ranges and '^' negation, '\' escapes the next byte
func MatchPattern(pattern, key []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if MatchPattern(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(key) == 0 {
				return false
			}
			key = key[1:]
		case '[':
			if len(key) == 0 {
				return false
			}
			var matched bool
			matched, pattern = matchClass(pattern[1:], key[0])
			if !matched {
				return false
			}
			key = key[1:]
			continue
		case '\\':
			if len(pattern) >= 2 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
			key = key[1:]
		}
		pattern = pattern[1:]
	}
	return len(key) == 0
}

// matchClass matches c against the class starting after '[' and returns the
// remaining pattern after the closing ']'
func matchClass(pattern []byte, c byte) (bool, []byte) {
	not := false
	if len(pattern) > 0 && pattern[0] == '^' {
		not = true
		pattern = pattern[1:]
	}

	matched := false
	for len(pattern) > 0 && pattern[0] != ']' {
		switch {
		case pattern[0] == '\\' && len(pattern) >= 2:
			if pattern[1] == c {
				matched = true
			}
			pattern = pattern[2:]
		case len(pattern) >= 3 && pattern[1] == '-' && pattern[2] != ']':
			lo, hi := pattern[0], pattern[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			pattern = pattern[3:]
		default:
			if pattern[0] == c {
				matched = true
			}
			pattern = pattern[1:]
		}
	}
	if len(pattern) > 0 {
		pattern = pattern[1:] // skip ']'
	}

	if not {
		matched = !matched
	}
	return matched, pattern
}
