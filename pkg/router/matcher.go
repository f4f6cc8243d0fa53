package router

import (
	"fmt"
	"strings"
)

// WildcardParam is the parameter name under which a trailing wildcard's
// capture is stored.
const WildcardParam = "*"

// segment is one compiled element of a route template. Exactly one of the
// two interpretations applies: param is the capture name for a `:name`
// segment, otherwise literal must match the path segment byte for byte.
type segment struct {
	literal string
	param   string
}

// PathMatcher is a compiled route template. Templates consist of literal
// segments, named parameters (`:name`, one non-empty non-slash segment),
// and at most one trailing wildcard (`*`, the entire remaining suffix,
// which may be empty). Matching is anchored: the whole path must be
// consumed. Percent-encoded characters are left undecoded; decoding is the
// handler's responsibility.
type PathMatcher struct {
	template string
	segments []segment
	wildcard bool
}

// CompilePattern compiles a route template. It fails when the template does
// not start with "/", when a parameter name is duplicated or empty, or
// when a wildcard is not the final segment.
func CompilePattern(template string) (*PathMatcher, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("route template %q must start with '/'", template)
	}

	parts := strings.Split(template, "/")
	m := &PathMatcher{
		template: template,
		segments: make([]segment, 0, len(parts)),
	}

	seen := make(map[string]bool)
	for i, part := range parts {
		switch {
		case part == "*":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("route template %q: wildcard must be the final segment", template)
			}
			m.wildcard = true
			m.segments = append(m.segments, segment{})
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, fmt.Errorf("route template %q: parameter name must not be empty", template)
			}
			if seen[name] {
				return nil, fmt.Errorf("route template %q: duplicate parameter %q", template, name)
			}
			seen[name] = true
			m.segments = append(m.segments, segment{param: name})
		default:
			m.segments = append(m.segments, segment{literal: part})
		}
	}

	return m, nil
}

// Template returns the template the matcher was compiled from.
func (m *PathMatcher) Template() string {
	return m.template
}

// Match reports whether path satisfies the template and, if so, the
// extracted parameters. A trailing wildcard matches the empty remainder:
// a path that stops where the wildcard begins is a valid, empty capture,
// not a non-match.
func (m *PathMatcher) Match(path string) (map[string]string, bool) {
	parts := strings.Split(path, "/")
	n := len(m.segments)

	if m.wildcard {
		if len(parts) < n-1 {
			return nil, false
		}
	} else if len(parts) != n {
		return nil, false
	}

	var params map[string]string
	bind := func(name, value string) {
		if params == nil {
			params = make(map[string]string, 4)
		}
		params[name] = value
	}

	for i, seg := range m.segments {
		if m.wildcard && i == n-1 {
			bind(WildcardParam, strings.Join(parts[i:], "/"))
			return params, true
		}

		got := parts[i]
		switch {
		case seg.param != "":
			if got == "" {
				return nil, false
			}
			bind(seg.param, got)
		case got != seg.literal:
			return nil, false
		}
	}

	return params, true
}
