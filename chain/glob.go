package chain

import "strings"

// globMatch matches an entry type name against a glob pattern. Supported
// syntax: `*` (any run within one segment), `**` (any run of segments),
// `[abc]` (character set), `{a,b}` (alternation). Segments are separated
// by `/`. No pack or ecosystem glob library covers `**` plus alternation
// over a custom separator, so the matcher lives here.
func globMatch(pattern, name string) bool {
	// Alternatives may themselves contain `/`, so braces are expanded
	// before the pattern is split into segments.
	if open := strings.IndexByte(pattern, '{'); open >= 0 {
		if end := strings.IndexByte(pattern[open:], '}'); end >= 0 {
			end += open
			for _, alt := range strings.Split(pattern[open+1:end], ",") {
				if globMatch(pattern[:open]+alt+pattern[end+1:], name) {
					return true
				}
			}
			return false
		}
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		// `**` consumes zero or more whole segments.
		for skip := 0; skip <= len(segs); skip++ {
			if matchSegments(pat[1:], segs[skip:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if !matchSegment(pat[0], segs[0]) {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// matchSegment matches one segment, expanding `{a,b}` alternations first.
func matchSegment(pat, s string) bool {
	open := strings.IndexByte(pat, '{')
	if open >= 0 {
		end := strings.IndexByte(pat[open:], '}')
		if end < 0 {
			return matchChars(pat, s)
		}
		end += open
		for _, alt := range strings.Split(pat[open+1:end], ",") {
			if matchSegment(pat[:open]+alt+pat[end+1:], s) {
				return true
			}
		}
		return false
	}
	return matchChars(pat, s)
}

// matchChars matches `*` and `[set]` within one segment.
func matchChars(pat, s string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			for skip := 0; skip <= len(s); skip++ {
				if matchChars(pat[1:], s[skip:]) {
					return true
				}
			}
			return false
		case '[':
			end := strings.IndexByte(pat, ']')
			if end < 0 {
				// Unterminated set matches literally.
				if len(s) == 0 || s[0] != pat[0] {
					return false
				}
				pat, s = pat[1:], s[1:]
				continue
			}
			if len(s) == 0 || !strings.ContainsRune(pat[1:end], rune(s[0])) {
				return false
			}
			pat, s = pat[end+1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0
}
