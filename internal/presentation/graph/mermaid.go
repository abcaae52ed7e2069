// Package graph renders agent configurations as Mermaid flowcharts.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
)

// Overlay colours stages after a run.
type Overlay struct {
	Results *domain.AgentResults
}

// GenerateMermaid produces a Mermaid flowchart of an agent.
//
// Stages are subgraphs holding their stage-items in declaration order; consecutive stages are
// chained. Iterated stages show their pass count, target-based stages their location.
// run_stages directives become dotted edges labelled with the event, pointing at the delegated
// stage, which is drawn even when it belongs to a dependency.
func GenerateMermaid(agent *config.Agent, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var edges []string
	external := make(map[string]bool)

	prev := ""
	for _, name := range agent.StageOrder {
		stage := agent.Stages[name]
		sid := nodeID(agent.Name, name)

		label := name
		if stage.Iteration != nil {
			label = fmt.Sprintf("%s ×%d", name, len(stage.Iteration.Indexes()))
		}
		if agent.TargetBased && stage.Location != "" {
			label = fmt.Sprintf("%s <br/> %s", label, quote(stage.Location))
		}
		sb.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", sid, label))

		prevItem := ""
		for _, item := range stage.ItemOrder {
			iid := nodeID(agent.Name, name, item)
			opener, closer := "[", "]"
			if it := stage.Items[item]; it != nil && it.When != nil && !it.When.Empty() {
				opener, closer = "{{", "}}" // gated
			}
			sb.WriteString(fmt.Sprintf("        %s%s\"%s\"%s\n", iid, opener, item, closer))
			if prevItem != "" {
				sb.WriteString(fmt.Sprintf("        %s --> %s\n", prevItem, iid))
			}
			prevItem = iid

			if it := stage.Items[item]; it != nil {
				edges = append(edges, delegations(agent, iid, it.Events, external)...)
			}
		}
		sb.WriteString("    end\n")
		edges = append(edges, delegations(agent, sid, stage.Events, external)...)

		if prev != "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, sid))
		}
		prev = sid
	}

	ext := make([]string, 0, len(external))
	for id := range external {
		ext = append(ext, id)
	}
	sort.Strings(ext)
	for _, ref := range ext {
		agentName, stage, _ := strings.Cut(ref, ".")
		sb.WriteString(fmt.Sprintf("    %s[/\"%s.%s\"/]\n", nodeID(agentName, stage), agentName, stage))
	}
	for _, e := range edges {
		sb.WriteString(e)
	}

	if overlay != nil && overlay.Results != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef passed fill:#e8f5e9,stroke:#1b5e20,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		classes := make(map[string]string)
		var order []string
		for _, key := range overlay.Results.Keys() {
			if key != agent.Name {
				continue
			}
			stages, _ := overlay.Results.Get(key)
			for _, stageKey := range stages.Keys() {
				base, ok := stageBase(agent, stageKey)
				if !ok || stages.Superseded(stageKey) {
					continue
				}
				elements, _ := stages.Get(stageKey)
				sid := nodeID(agent.Name, base)
				if _, seen := classes[sid]; !seen {
					order = append(order, sid)
					classes[sid] = "passed"
				}
				// A failing pass wins over passing ones.
				if !elements.IsSuccessful() {
					classes[sid] = "failed"
				}
			}
		}
		for _, sid := range order {
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", sid, classes[sid]))
		}
	}

	return sb.String()
}

func delegations(agent *config.Agent, from string, events config.Events, external map[string]bool) []string {
	names := make([]string, 0, len(events))
	for ev := range events {
		names = append(names, ev)
	}
	sort.Strings(names)

	var out []string
	for _, ev := range names {
		for _, raw := range events[ev] {
			d, err := config.ParseDirective(raw, agent.Name)
			if err != nil || d.Kind != config.DirectiveRunStages {
				continue
			}
			for _, ref := range d.Targets {
				if ref.Agent != agent.Name {
					external[ref.Agent+"."+ref.Stage] = true
				}
				out = append(out, fmt.Sprintf("    %s -. \"%s\" .-> %s\n", from, ev, nodeID(ref.Agent, ref.Stage)))
			}
		}
	}
	return out
}

// stageBase maps a stage key back to a declared stage by stripping the retry suffix,
// then a delegation alias, then the iteration index.
func stageBase(agent *config.Agent, key string) (string, bool) {
	key, _, _ = strings.Cut(key, "@")
	for _, candidate := range []string{key, strings.TrimRight(key, "0123456789")} {
		if _, ok := agent.Stages[candidate]; ok {
			return candidate, true
		}
	}
	if i := strings.LastIndex(key, "-"); i > 0 {
		return stageBase(agent, key[:i])
	}
	return "", false
}

func quote(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func nodeID(parts ...string) string {
	s := strings.Join(parts, "__")
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(s)
}
