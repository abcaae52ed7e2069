package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// ResultsMarkdown renders a result tree as a markdown report: one section per agent,
// one table per stage with a row per action result.
func ResultsMarkdown(results *domain.AgentResults) string {
	var sb strings.Builder
	for _, agent := range results.Keys() {
		stages, _ := results.Get(agent)
		fmt.Fprintf(&sb, "# %s %s\n\n", agent, verdict(stages.IsSuccessful()))

		for _, stageKey := range stages.Keys() {
			elements, _ := stages.Get(stageKey)
			title := stageKey
			if stages.Superseded(stageKey) {
				title += " (superseded)"
			}
			fmt.Fprintf(&sb, "## %s %s\n\n", title, verdict(elements.IsSuccessful()))
			sb.WriteString("| key | action | ok | detail |\n|---|---|---|---|\n")

			for _, key := range elements.Keys() {
				label := key
				if elements.Superseded(key) {
					label = "~~" + key + "~~"
				}
				list, _ := elements.Get(key)
				for _, r := range list {
					fmt.Fprintf(&sb, "| %s | `%s` | %s | %s |\n",
						cell(label), cell(r.Action.String()), mark(r.Success), cell(detail(r)))
				}
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// TaskMarkdown renders a task record with the result tree of every agent that ran.
func TaskMarkdown(t *domain.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Task %s\n\n", t.ID)
	fmt.Fprintf(&sb, "Status: **%s**", t.Status)
	if t.Stopped {
		sb.WriteString(" (stop requested)")
	}
	sb.WriteString("\n\n| agent | status | error | archive |\n|---|---|---|---|\n")
	for _, a := range t.Agents {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", cell(a.Agent), a.Status, cell(a.Error), cell(a.Archive))
	}
	sb.WriteString("\n")
	for _, a := range t.Agents {
		if a.Results != nil {
			sb.WriteString(ResultsMarkdown(a.Results))
		}
	}
	return sb.String()
}

// StatusLine writes a one-line coloured status for w.
func StatusLine(w io.Writer, label string, status domain.Status) {
	out := termenv.NewOutput(w)
	color := "#facc15"
	switch status {
	case domain.StatusSuccess:
		color = "#22c55e"
	case domain.StatusFailure, domain.StatusStopped:
		color = "#ef4444"
	}
	fmt.Fprintf(w, "%s %s\n", label, out.String(string(status)).Foreground(out.Color(color)).Bold())
}

func verdict(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "**no**"
}

func detail(r *domain.ActionResult) string {
	if r.Error != "" {
		return r.Error
	}
	if r.Payload == nil {
		return ""
	}
	if s, ok := r.Payload.(string); ok {
		return s
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprint(r.Payload)
	}
	return string(data)
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
