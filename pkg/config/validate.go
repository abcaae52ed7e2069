package config

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/condition"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/schema"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	stageEvents = map[string]bool{domain.OnStart: true, domain.OnError: true, domain.OnSuccess: true}
	itemEvents  = map[string]bool{domain.OnError: true, domain.OnSuccess: true}
)

func domainError(path, format string, args ...any) error {
	return &schema.ValidationError{Phase: "domain", Path: path, Message: fmt.Sprintf(format, args...)}
}

// validateAgent applies the rules a JSON Schema cannot express.
func validateAgent(a *Agent) []error {
	var errs []error

	if len(a.Stages) == 0 {
		errs = append(errs, domainError("stages", "agent declares no stages"))
	}
	for _, dep := range a.Depends {
		if dep == a.Name {
			errs = append(errs, domainError("depends", "agent %q depends on itself", dep))
		}
	}
	if a.Defaults != nil {
		errs = append(errs, validateItem(a, "defaults", a.Defaults)...)
	}

	for _, name := range a.StageOrder {
		stage := a.Stages[name]
		path := "stages/" + name
		if !namePattern.MatchString(name) {
			errs = append(errs, domainError(path, "stage name must match %s", namePattern))
		}
		if err := ValidateIteration(stage.Iteration); err != nil {
			errs = append(errs, domainError(path+"/iteration", "%v", err))
		}
		errs = append(errs, validateGate(path+"/when", stage.When)...)
		errs = append(errs, validateEvents(a, path+"/events", stage.Events, stageEvents)...)

		for _, itemName := range stage.ItemOrder {
			itemPath := path + "/stage-items/" + itemName
			if !namePattern.MatchString(itemName) {
				errs = append(errs, domainError(itemPath, "stage-item name must match %s", namePattern))
			}
			item := stage.Items[itemName]
			if len(item.Actions) == 0 {
				errs = append(errs, domainError(itemPath+"/actions", "stage-item has no actions"))
			}
			errs = append(errs, validateItem(a, itemPath, item)...)
		}
	}
	return errs
}

func validateItem(a *Agent, path string, item *Item) []error {
	var errs []error
	for i, sig := range item.Actions {
		if err := checkSignature(sig); err != nil {
			errs = append(errs, domainError(fmt.Sprintf("%s/actions/%d", path, i), "%v", err))
		}
	}
	if item.Timeout != "" {
		if d, err := time.ParseDuration(item.Timeout); err != nil || d < 0 {
			errs = append(errs, domainError(path+"/timeout", "invalid duration %q", item.Timeout))
		}
	}
	errs = append(errs, validateGate(path+"/when", item.When)...)
	errs = append(errs, validateGate(path+"/expected", item.Expected)...)
	errs = append(errs, validateEvents(a, path+"/events", item.Events, itemEvents)...)
	return errs
}

func validateGate(path string, g *Gate) []error {
	if g == nil {
		return nil
	}
	var errs []error
	for i, sig := range g.Actions {
		if err := checkSignature(sig); err != nil {
			errs = append(errs, domainError(fmt.Sprintf("%s/actions/%d", path, i), "%v", err))
		}
	}
	if strings.TrimSpace(g.Expr) != "" {
		if _, err := condition.Compile(g.Expr); err != nil {
			errs = append(errs, domainError(path+"/expr", "%v", err))
		}
	}
	return errs
}

func validateEvents(a *Agent, path string, events Events, allowed map[string]bool) []error {
	var errs []error
	for event, directives := range events {
		if !allowed[event] {
			errs = append(errs, domainError(path, "unknown event %q", event))
			continue
		}
		for i, raw := range directives {
			at := fmt.Sprintf("%s/%s/%d", path, event, i)
			d, err := checkDirective(a, raw)
			if err != nil {
				errs = append(errs, domainError(at, "%v", err))
				continue
			}
			// onstart runs before any stage-item, so there is nothing to retry.
			if event == domain.OnStart && d.Kind == DirectiveRetry {
				errs = append(errs, domainError(at, "retry is not applicable to onstart"))
			}
		}
	}
	return errs
}

func checkSignature(sig string) error {
	tokens, err := action.Tokenize(strings.TrimSpace(sig))
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("empty action signature")
	}
	if tokens[0] == domain.Negation && len(tokens) < 2 {
		return fmt.Errorf("negation without operation in %q", sig)
	}
	return nil
}

// Directive is a parsed event directive.
type Directive struct {
	Kind    string // continue, fail, retry, run_stages or action
	Retries int
	Targets []StageRef
	Raw     string
}

// StageRef names a stage, optionally of another agent.
type StageRef struct {
	Agent string
	Stage string
}

// ParseDirective classifies a directive. Bare run_stages targets default to caller.
func ParseDirective(raw, caller string) (Directive, error) {
	tokens, err := action.Tokenize(strings.TrimSpace(raw))
	if err != nil {
		return Directive{}, err
	}
	if len(tokens) == 0 {
		return Directive{}, fmt.Errorf("empty directive")
	}

	d := Directive{Kind: tokens[0], Raw: raw}
	switch tokens[0] {
	case DirectiveContinue, DirectiveFail:
		if len(tokens) > 1 {
			return d, fmt.Errorf("%s takes no arguments", tokens[0])
		}
	case DirectiveRetry:
		if len(tokens) != 2 {
			return d, fmt.Errorf("retry takes exactly one count")
		}
		n, err := strconv.Atoi(tokens[1])
		if err != nil || n < 0 {
			return d, fmt.Errorf("retry count must be a non-negative integer, got %q", tokens[1])
		}
		d.Retries = n
	case DirectiveRunStages:
		if len(tokens) < 2 {
			return d, fmt.Errorf("run_stages needs at least one stage")
		}
		for _, t := range tokens[1:] {
			ref := StageRef{Agent: caller, Stage: t}
			if agent, stage, ok := strings.Cut(t, "."); ok {
				ref = StageRef{Agent: agent, Stage: stage}
			}
			if ref.Agent == "" || ref.Stage == "" {
				return d, fmt.Errorf("bad stage reference %q", t)
			}
			if slices.Contains(d.Targets, ref) {
				return d, fmt.Errorf("run_stages: stage %q is listed twice", t)
			}
			d.Targets = append(d.Targets, ref)
		}
	default:
		d.Kind = "action"
		if err := checkSignature(raw); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Terminal reports whether the directive ends directive processing.
func (d Directive) Terminal() bool {
	switch d.Kind {
	case DirectiveContinue, DirectiveFail, DirectiveRetry:
		return true
	}
	return false
}

func checkDirective(a *Agent, raw string) (Directive, error) {
	d, err := ParseDirective(raw, a.Name)
	if err != nil {
		return d, err
	}
	for _, ref := range d.Targets {
		if ref.Agent == a.Name {
			if _, ok := a.Stages[ref.Stage]; !ok {
				return d, fmt.Errorf("run_stages: unknown stage %q", ref.Stage)
			}
			continue
		}
		if !slices.Contains(a.Depends, ref.Agent) {
			return d, fmt.Errorf("run_stages: agent %q is not a declared dependency", ref.Agent)
		}
	}
	return d, nil
}

// ValidateIteration checks iteration bounds.
func ValidateIteration(it *Iteration) error {
	if it == nil {
		return nil
	}
	if it.Step == 0 {
		return domain.NewConfigError("iteration", "step must not be zero", nil)
	}
	if it.Start < 0 || it.End < 0 {
		return domain.NewConfigError("iteration", "start and end must not be negative", nil)
	}
	if (it.Step > 0 && it.Start >= it.End) || (it.Step < 0 && it.Start <= it.End) {
		return domain.NewConfigError("iteration",
			fmt.Sprintf("step %d never moves start %d towards end %d", it.Step, it.Start, it.End), nil)
	}
	if it.Index != "" && !namePattern.MatchString(it.Index) {
		return domain.NewConfigError("iteration", fmt.Sprintf("bad index variable %q", it.Index), nil)
	}
	return nil
}

// validateDelegations checks run_stages targets that point at dependencies.
func validateDelegations(a *Agent) []error {
	var errs []error
	check := func(path string, events Events) {
		for event, directives := range events {
			for i, raw := range directives {
				d, err := ParseDirective(raw, a.Name)
				if err != nil {
					continue
				}
				for _, ref := range d.Targets {
					if ref.Agent == a.Name {
						continue
					}
					dep, ok := a.Dependencies[ref.Agent]
					if !ok {
						continue
					}
					if _, ok := dep.Stages[ref.Stage]; !ok {
						errs = append(errs, domainError(fmt.Sprintf("%s/%s/%d", path, event, i),
							"run_stages: agent %q has no stage %q", ref.Agent, ref.Stage))
					}
				}
			}
		}
	}
	for _, name := range a.StageOrder {
		stage := a.Stages[name]
		check("stages/"+name+"/events", stage.Events)
		for _, itemName := range stage.ItemOrder {
			check("stages/"+name+"/stage-items/"+itemName+"/events", stage.Items[itemName].Events)
		}
	}
	return errs
}
