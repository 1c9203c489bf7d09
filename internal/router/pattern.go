package router

import "strings"

type segmentKind int

const (
	segLiteral segmentKind = iota
	segSingle
	segWildcard
)

type segment struct {
	kind segmentKind
	text string // literal value, or capture name for single/wildcard
}

// splitPath turns a URL path into segments. The root path ("" after
// trimming the leading slash) is the empty segment list; any other path
// keeps a trailing empty segment to represent a trailing slash, which is
// what lets `{*rest}` capture "" for a path like "/a/".
func splitPath(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// compilePattern parses a route pattern into its segment matchers,
// validating the `{name}` / `{*name}` capture syntax.
func compilePattern(pattern string) ([]segment, error) {
	parts := splitPath(pattern)
	segments := make([]segment, 0, len(parts))
	for i, p := range parts {
		switch {
		case p == "":
			return nil, newInvalidPattern(pattern, "empty path segment")
		case strings.HasPrefix(p, "{*") && strings.HasSuffix(p, "}"):
			name := p[2 : len(p)-1]
			if name == "" {
				return nil, newInvalidPattern(pattern, "wildcard capture must be named")
			}
			if i != len(parts)-1 {
				return nil, newInvalidPattern(pattern, "wildcard capture must be the terminal segment")
			}
			segments = append(segments, segment{kind: segWildcard, text: name})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			name := p[1 : len(p)-1]
			if name == "" || strings.Contains(name, "*") {
				return nil, newInvalidPattern(pattern, "malformed capture segment: "+p)
			}
			segments = append(segments, segment{kind: segSingle, text: name})
		case strings.ContainsAny(p, "{}"):
			return nil, newInvalidPattern(pattern, "malformed literal segment: "+p)
		default:
			segments = append(segments, segment{kind: segLiteral, text: p})
		}
	}
	return segments, nil
}
