package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scope prefixes.
const (
	ScopeResults = "results"
	ScopeContext = "context"
	ScopeSelf    = ""

	// Me expands to the current [agent, stage, stage-item] in the results scope.
	Me = "me"
)

var (
	tokenPattern = regexp.MustCompile(`\$(?:\{([^{}]*)\}|([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*(?:\[-?[0-9]+\])?))`)
	bodyPattern  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*)(?:\[(-?[0-9]+)\])?$`)
)

// Reference is one parsed variable token.
type Reference struct {
	Raw   string
	Scope string
	Path  []string
	Index *int
}

// Runtime reports whether the reference can only be resolved while actions execute.
func (r Reference) Runtime() bool {
	return r.Scope == ScopeResults || r.Scope == ScopeContext
}

func (r Reference) String() string {
	return r.Raw
}

// ParseReference parses a single token such as "${results.me[1]}".
func ParseReference(raw string) (Reference, error) {
	body := strings.TrimPrefix(raw, "$")
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
		body = body[1 : len(body)-1]
	}
	body = strings.TrimSpace(body)

	m := bodyPattern.FindStringSubmatch(body)
	if m == nil {
		return Reference{}, fmt.Errorf("malformed variable reference %q", raw)
	}

	ref := Reference{Raw: raw}
	segments := strings.Split(m[1], ".")
	switch segments[0] {
	case ScopeResults, ScopeContext:
		ref.Scope = segments[0]
		ref.Path = segments[1:]
	default:
		ref.Scope = ScopeSelf
		ref.Path = segments
	}
	if len(ref.Path) == 0 {
		return Reference{}, fmt.Errorf("variable reference %q names a scope without a path", raw)
	}
	if m[2] != "" {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return Reference{}, fmt.Errorf("variable reference %q: bad index: %w", raw, err)
		}
		ref.Index = &idx
	}
	return ref, nil
}

// span is the location of a token in a text.
type span struct {
	start, end int
}

// nextToken finds the next token at or after from.
func nextToken(text string, from int) (span, bool) {
	loc := tokenPattern.FindStringIndex(text[from:])
	if loc == nil {
		return span{}, false
	}
	return span{start: from + loc[0], end: from + loc[1]}, true
}

// References lists every reference found in text. Malformed tokens are skipped.
func References(text string) []Reference {
	var refs []Reference
	pos := 0
	for {
		sp, ok := nextToken(text, pos)
		if !ok {
			return refs
		}
		if ref, err := ParseReference(text[sp.start:sp.end]); err == nil {
			refs = append(refs, ref)
		}
		pos = sp.end
	}
}

// HasReferences reports whether text contains at least one token.
func HasReferences(text string) bool {
	return tokenPattern.MatchString(text)
}
