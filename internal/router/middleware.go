package router

import (
	"sort"
	"strings"
)

// middlewareEntry is one (path-glob, ordered callables) tuple. Multiple
// RegisterMiddleware calls against the same glob append to the same
// entry's callable list; a new glob creates a new entry, appended in
// first-registration order.
type middlewareEntry struct {
	glob string
	fns  []MiddlewareFunc
}

func (e *middlewareEntry) isGlobal() bool { return e.glob == "*" }

// prefix returns the literal prefix a non-global glob matches against,
// and whether the glob is a prefix-match ("/api/*") as opposed to an
// exact path.
func (e *middlewareEntry) prefix() (string, bool) {
	if strings.HasSuffix(e.glob, "*") {
		return strings.TrimSuffix(e.glob, "*"), true
	}
	return e.glob, false
}

func (e *middlewareEntry) matches(path string) bool {
	if e.isGlobal() {
		return true
	}
	prefix, isPrefix := e.prefix()
	if isPrefix {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix
}

// chainFor builds the ordered list of callables that apply to path:
// every global entry (in registration order), then matching
// non-global entries sorted shortest-prefix-to-longest, stable on
// registration order for ties.
func chainFor(entries []*middlewareEntry, path string) []MiddlewareFunc {
	var chain []MiddlewareFunc
	var specific []*middlewareEntry

	for _, e := range entries {
		if e.isGlobal() {
			chain = append(chain, e.fns...)
			continue
		}
		if e.matches(path) {
			specific = append(specific, e)
		}
	}

	sort.SliceStable(specific, func(i, j int) bool {
		pi, _ := specific[i].prefix()
		pj, _ := specific[j].prefix()
		return len(pi) < len(pj)
	})

	for _, e := range specific {
		chain = append(chain, e.fns...)
	}
	return chain
}
