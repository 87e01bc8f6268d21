package bus

import "strings"

// isWildcardPattern reports whether pattern contains a MQTT-style wildcard
// segment: '+' for exactly one segment, '#' for a trailing suffix of any
// length (including zero).
func isWildcardPattern(pattern string) bool {
	return strings.ContainsRune(pattern, '+') || strings.ContainsRune(pattern, '#')
}

// matchTopic reports whether topic satisfies pattern, split on '/'. '+'
// matches exactly one segment; '#' must be the final segment and matches
// every remaining segment, including none. Matching is O(segments).
func matchTopic(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")

	for i, p := range pSegs {
		if p == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}
