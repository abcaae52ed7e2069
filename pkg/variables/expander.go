package variables

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// Mode selects how unresolved references are treated.
type Mode int

const (
	// Tolerant resolves the self scope and leaves everything else untouched.
	Tolerant Mode = iota
	// Validate resolves the self scope and rejects any leftover reference
	// that does not belong to the results or context scopes.
	Validate
	// Strict resolves every scope and rejects any leftover reference.
	Strict
)

// Here is the position used to expand "me".
type Here struct {
	Agent string
	Stage string
	Item  string
}

func (h Here) path() []string {
	out := []string{h.Agent, h.Stage}
	if h.Item != "" {
		out = append(out, h.Item)
	}
	return out
}

// Expander substitutes references in text.
type Expander struct {
	Self    Scope
	Context Scope
	Results Scope
	Here    Here
}

// Expand resolves the references in text according to mode.
func (e *Expander) Expand(text string, mode Mode) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}

	var out strings.Builder
	pos := 0
	for {
		sp, ok := nextToken(text, pos)
		if !ok {
			out.WriteString(text[pos:])
			return out.String(), nil
		}
		out.WriteString(text[pos:sp.start])
		raw := text[sp.start:sp.end]

		ref, err := ParseReference(raw)
		if err != nil {
			if mode == Tolerant {
				out.WriteString(raw)
				pos = sp.end
				continue
			}
			return "", err
		}

		value, found, err := e.resolve(ref, mode)
		if err != nil {
			return "", err
		}
		switch {
		case found:
			out.WriteString(value)
		case mode == Strict, mode == Validate && !ref.Runtime():
			return "", fmt.Errorf("%w: %s", domain.ErrUnresolvedVariable, raw)
		default:
			out.WriteString(raw)
		}
		pos = sp.end
	}
}

// ExpandAll expands each element of texts.
func (e *Expander) ExpandAll(texts []string, mode Mode) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		v, err := e.Expand(t, mode)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Value resolves a single reference to its raw value, without formatting.
func (e *Expander) Value(ref Reference) (any, bool, error) {
	scope, path := e.scopeFor(ref)
	if scope == nil {
		return nil, false, nil
	}
	v, ok := scope.Lookup(path)
	if !ok {
		return nil, false, nil
	}
	v, err := pick(v, ref.Index, ref.Scope == ScopeResults)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", ref.Raw, err)
	}
	return v, true, nil
}

func (e *Expander) resolve(ref Reference, mode Mode) (string, bool, error) {
	if mode != Strict && ref.Runtime() {
		return "", false, nil
	}
	v, ok, err := e.Value(ref)
	if err != nil || !ok {
		return "", ok, err
	}
	return Format(v), true, nil
}

func (e *Expander) scopeFor(ref Reference) (Scope, []string) {
	switch ref.Scope {
	case ScopeResults:
		path := ref.Path
		if len(path) > 0 && path[0] == Me {
			path = append(e.Here.path(), path[1:]...)
		}
		return e.Results, path
	case ScopeContext:
		return e.Context, ref.Path
	default:
		return e.Self, ref.Path
	}
}

// pick applies the optional index to list values and unwraps action results to their payload.
func pick(v any, index *int, unwrap bool) (any, error) {
	switch list := v.(type) {
	case domain.ActionResults:
		i, err := position(len(list), index)
		if err != nil {
			return nil, err
		}
		return list[i].Payload, nil
	case []any:
		i, err := position(len(list), index)
		if err != nil {
			return nil, err
		}
		return list[i], nil
	case []string:
		i, err := position(len(list), index)
		if err != nil {
			return nil, err
		}
		return list[i], nil
	}
	if unwrap {
		return nil, fmt.Errorf("results reference must address a stage-item")
	}
	if index != nil {
		return nil, fmt.Errorf("index [%d] applied to a non-list value", *index)
	}
	return v, nil
}

func position(n int, index *int) (int, error) {
	if n == 0 {
		return 0, fmt.Errorf("empty list")
	}
	if index == nil {
		return n - 1, nil
	}
	i := *index
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %d out of range [0,%d)", *index, n)
	}
	return i, nil
}

// Format renders a resolved value as text. Maps and lists are rendered as JSON.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case map[string]any, []any, map[any]any:
		if data, err := json.Marshal(normalize(t)); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
