package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// Mask replaces every masked value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.TaskStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks sensitive values in the stored action results. A value is
// sensitive when its key matches one of the patterns: map keys of payloads, key=value
// arguments, and the context key of set actions.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.TaskStore) ports.TaskStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, task *domain.Task) error {
	// The in-memory results belong to a live run and must stay untouched.
	cloned, err := deepCopy(task)
	if err != nil {
		return err
	}
	for _, a := range cloned.Agents {
		if a.Results != nil {
			m.maskResults(a.Results)
		}
	}
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.Task, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopy(task *domain.Task) (*domain.Task, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to copy task: %w", err)
	}
	var out domain.Task
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy task: %w", err)
	}
	return &out, nil
}

func (m *piiMiddleware) maskResults(agent *domain.AgentResults) {
	for _, sk := range agent.Keys() {
		stage, _ := agent.Get(sk)
		if stage == nil {
			continue
		}
		for _, ek := range stage.Keys() {
			elem, _ := stage.Get(ek)
			if elem == nil {
				continue
			}
			for _, ik := range elem.Keys() {
				results, _ := elem.Get(ik)
				for _, r := range results {
					m.maskResult(r)
				}
			}
		}
	}
}

func (m *piiMiddleware) maskResult(r *domain.ActionResult) {
	if payload, ok := r.Payload.(map[string]any); ok {
		m.maskMap(payload)
	}
	act := r.Action
	if act == nil {
		return
	}
	if act.Operation() == "set" && len(act.Args) > 0 && m.sensitive(act.Args[0]) {
		r.Payload = Mask
		for i := 1; i < len(act.Args); i++ {
			act.Signature = strings.ReplaceAll(act.Signature, act.Args[i], Mask)
			act.Args[i] = Mask
		}
		return
	}
	for i, arg := range act.Args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || v == "" || !m.sensitive(k) {
			continue
		}
		act.Signature = strings.ReplaceAll(act.Signature, arg, k+"="+Mask)
		act.Args[i] = k + "=" + Mask
	}
}

func (m *piiMiddleware) sensitive(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) maskMap(data map[string]any) {
	for k, v := range data {
		if m.sensitive(k) {
			data[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			m.maskMap(sub)
		}
	}
}
