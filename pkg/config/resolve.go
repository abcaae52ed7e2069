package config

import (
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// selfResolver expands self-scope references across a configuration tree.
// Each string is resolved against the closest roots first: stage-item, stage, agent.
type selfResolver struct {
	tree map[string]any
	mode variables.Mode
	errs []error
}

// resolveSelf runs the tolerant pass, then the validating pass over its output.
// The defaults block is only resolved tolerantly: its references are checked in the
// stage-items that inherit it.
func resolveSelf(tree map[string]any) (map[string]any, []error) {
	first := &selfResolver{tree: tree, mode: variables.Tolerant}
	pass1, _ := first.node(tree, variables.Self{tree}, "").(map[string]any)

	second := &selfResolver{tree: pass1, mode: variables.Validate}
	pass2, _ := second.node(pass1, variables.Self{pass1}, "").(map[string]any)
	return pass2, append(first.errs, second.errs...)
}

func (r *selfResolver) node(v any, roots variables.Self, path string) any {
	switch t := v.(type) {
	case string:
		exp := &variables.Expander{Self: roots}
		out, err := exp.Expand(t, r.mode)
		if err != nil {
			r.errs = append(r.errs, domain.NewConfigError(path, "cannot resolve "+quote(t), err))
			return t
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if path == "" && k == "defaults" && r.mode == variables.Validate {
				out[k] = child
				continue
			}
			childRoots := roots
			if m, ok := child.(map[string]any); ok && scopesChildren(path, k) {
				childRoots = append(variables.Self{m}, roots...)
			}
			out[k] = r.node(child, childRoots, joinPath(path, k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = r.node(child, roots, path)
		}
		return out
	default:
		return v
	}
}

// scopesChildren reports whether the child key under parent opens a new self root:
// a stage, a stage-item or the defaults block.
func scopesChildren(parent, key string) bool {
	if parent == "" {
		return key == "defaults"
	}
	parts := strings.Split(parent, ".")
	switch {
	case len(parts) == 1 && parts[0] == domain.KeyStages:
		return true
	case len(parts) == 3 && parts[0] == domain.KeyStages && parts[2] == domain.KeyStageItems:
		return true
	}
	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
