package storage

// MatchPattern reports whether str matches the Redis glob pattern.
//
// Supported syntax:
//   - '*' matches any sequence, including the empty one
//   - '?' matches exactly one byte
//   - '[abc]', '[a-z]' and '[^a-z]' match byte classes
//   - '\x' matches x literally
func MatchPattern(str, pattern string) bool {
	return matchAutomaton(str, pattern, 0, 0, make(map[[2]int]bool))
}

// matchAutomaton matches str[strIdx:] against pattern[patIdx:] with
// memoisation on the (strIdx, patIdx) state
func matchAutomaton(str, pattern string, strIdx, patIdx int, memo map[[2]int]bool) bool {
	key := [2]int{strIdx, patIdx}
	if result, exists := memo[key]; exists {
		return result
	}

	var result bool
	switch {
	case patIdx == len(pattern):
		result = strIdx == len(str)

	case pattern[patIdx] == '*':
		// Collapse runs of stars
		next := patIdx
		for next < len(pattern) && pattern[next] == '*' {
			next++
		}
		for i := strIdx; i <= len(str) && !result; i++ {
			result = matchAutomaton(str, pattern, i, next, memo)
		}

	case strIdx == len(str):
		result = false

	case pattern[patIdx] == '?':
		result = matchAutomaton(str, pattern, strIdx+1, patIdx+1, memo)

	case pattern[patIdx] == '[':
		matched, next := matchClass(str[strIdx], pattern, patIdx+1)
		result = matched && matchAutomaton(str, pattern, strIdx+1, next, memo)

	default:
		p := patIdx
		if pattern[p] == '\\' && p+1 < len(pattern) {
			p++
		}
		result = pattern[p] == str[strIdx] && matchAutomaton(str, pattern, strIdx+1, p+1, memo)
	}

	memo[key] = result
	return result
}

// matchClass evaluates a bracket expression starting just after '[' and
// returns whether c matched and the pattern index after the closing ']'.
// An unterminated class runs to the end of the pattern, as in Redis.
func matchClass(c byte, pattern string, i int) (bool, int) {
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}

	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			i++
			if pattern[i] == c {
				matched = true
			}
			i++
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}
	if i < len(pattern) {
		i++ // skip ']'
	}

	if negate {
		matched = !matched
	}
	return matched, i
}
