package protect

import (
	"path"
	"strings"
)

// matchGlobPattern matches a slash-separated field path against a glob
// pattern. "**" spans any number of segments; other segments use path.Match.
func matchGlobPattern(fieldPath, pattern string) bool {
	return matchParts(strings.Split(fieldPath, "/"), strings.Split(pattern, "/"))
}

func matchParts(segments, pattern []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := range len(segments) + 1 {
				if matchParts(segments[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(segments) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], segments[0]); err != nil || !ok {
			return false
		}
		segments, pattern = segments[1:], pattern[1:]
	}
	return len(segments) == 0
}
