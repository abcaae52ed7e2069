package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/stagecraft/pkg/domain"
)

var directivesType = reflect.TypeOf(Directives(nil))

// directivesHook accepts a single directive where a list is expected.
func directivesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to == directivesType && from.Kind() == reflect.String {
		return Directives{data.(string)}, nil
	}
	return data, nil
}

// decodeAgent maps a resolved tree onto an Agent and applies declaration order and defaults.
func decodeAgent(tree map[string]any, ord order) (*Agent, error) {
	var a Agent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: directivesHook,
		Result:     &a,
		TagName:    "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(tree); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}

	stagesTree, _ := tree[domain.KeyStages].(map[string]any)
	a.StageOrder = keysInOrder(stagesTree, ord[domain.KeyStages])
	for name, stage := range a.Stages {
		if stage == nil {
			stage = &Stage{}
			a.Stages[name] = stage
		}
		itemsTree := subtree(stagesTree, name, domain.KeyStageItems)
		stage.ItemOrder = keysInOrder(itemsTree, ord[joinPath(joinPath(domain.KeyStages, name), domain.KeyStageItems)])
		for itemName, item := range stage.Items {
			if item == nil {
				item = &Item{}
				stage.Items[itemName] = item
			}
			applyDefaults(item, a.Defaults)
		}
	}
	a.Tree = tree
	return &a, nil
}

// applyDefaults fills unset stage-item fields from the agent defaults.
func applyDefaults(item, defaults *Item) {
	if defaults == nil {
		return
	}
	if len(item.Actions) == 0 {
		item.Actions = append([]string(nil), defaults.Actions...)
	}
	if item.Target == "" {
		item.Target = defaults.Target
	}
	if item.Timeout == "" {
		item.Timeout = defaults.Timeout
	}
	if item.Expected == nil {
		item.Expected = defaults.Expected
	}
	if len(item.Events) == 0 && len(defaults.Events) > 0 {
		item.Events = make(Events, len(defaults.Events))
		for k, v := range defaults.Events {
			item.Events[k] = append(Directives(nil), v...)
		}
	}
}

// inheritedKeys are the stage-item fields a defaults block supplies.
var inheritedKeys = []string{"actions", "target", "timeout", "expected", "events"}

// inheritDefaults copies the defaults block into every stage-item that leaves a field unset,
// so self references in defaults resolve against the item that inherits them.
// The input tree is not modified.
func inheritDefaults(tree map[string]any) map[string]any {
	defaults, _ := tree["defaults"].(map[string]any)
	stages, _ := tree[domain.KeyStages].(map[string]any)
	if len(defaults) == 0 || len(stages) == 0 {
		return tree
	}

	outStages := make(map[string]any, len(stages))
	for name, raw := range stages {
		stage, ok := raw.(map[string]any)
		items, _ := stage[domain.KeyStageItems].(map[string]any)
		if !ok || len(items) == 0 {
			outStages[name] = raw
			continue
		}
		outItems := make(map[string]any, len(items))
		for itemName, rawItem := range items {
			item, _ := rawItem.(map[string]any)
			merged := make(map[string]any, len(item)+len(inheritedKeys))
			for k, v := range item {
				merged[k] = v
			}
			for _, k := range inheritedKeys {
				if v, ok := defaults[k]; ok && unset(merged[k]) {
					merged[k] = v
				}
			}
			outItems[itemName] = merged
		}
		outStage := make(map[string]any, len(stage))
		for k, v := range stage {
			outStage[k] = v
		}
		outStage[domain.KeyStageItems] = outItems
		outStages[name] = outStage
	}

	out := make(map[string]any, len(tree))
	for k, v := range tree {
		out[k] = v
	}
	out[domain.KeyStages] = outStages
	return out
}

func unset(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
