package utils

import "strings"

// Match reports whether value matches pattern. Patterns support a
// single '*' wildcard anywhere: "*" matches everything, "api-*" any
// value with that prefix, "*-orders" any value with that suffix, and
// "api-*-v2" any value enclosed by both halves. A pattern without '*'
// must match exactly.
func Match(value, pattern string) bool {
	if pattern == "*" {
		return true
	}
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return value == pattern
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	if len(value) < len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix)
}

// MatchAny reports whether value matches at least one of the patterns.
// An empty pattern list matches everything; callers that want a
// stricter default must check for emptiness themselves.
func MatchAny(value string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(value, p) {
			return true
		}
	}
	return false
}
