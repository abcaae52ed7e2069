package domain

import (
	"fmt"
	"strings"
)

// Structural keys of the agent configuration tree.
const (
	KeyStages     = "stages"
	KeyStageItems = "stage-items"
)

// Name identifies a stage or stage-item.
// Value is the name used in configuration, ID disambiguates repeated instances (e.g. "login2").
type Name struct {
	Value string `json:"value"`
	ID    string `json:"id"`
}

// NewName returns a Name whose identifier equals its value.
func NewName(value string) Name {
	return Name{Value: value, ID: value}
}

// WithID returns a copy of the name carrying a different identifier.
func (n Name) WithID(id string) Name {
	n.ID = id
	return n
}

// Identifier returns the disambiguating identifier, falling back to the value.
func (n Name) Identifier() string {
	if n.ID == "" {
		return n.Value
	}
	return n.ID
}

func (n Name) String() string {
	if n.ID == "" || n.ID == n.Value {
		return n.Value
	}
	return fmt.Sprintf("%s(%s)", n.Value, n.ID)
}

// ConfigPath addresses a node of the agent configuration.
// It is either [stages, <stage>] or [stages, <stage>, stage-items, <item>].
type ConfigPath []Name

// StagePath builds the path of a stage.
func StagePath(stage Name) ConfigPath {
	return ConfigPath{NewName(KeyStages), stage}
}

// ItemPath builds the path of a stage-item.
func ItemPath(stage, item Name) ConfigPath {
	return ConfigPath{NewName(KeyStages), stage, NewName(KeyStageItems), item}
}

// Valid reports whether the path has one of the two allowed shapes.
func (p ConfigPath) Valid() bool {
	switch len(p) {
	case 2:
		return p[0].Value == KeyStages
	case 4:
		return p[0].Value == KeyStages && p[2].Value == KeyStageItems
	default:
		return false
	}
}

// IsItem reports whether the path addresses a stage-item.
func (p ConfigPath) IsItem() bool {
	return len(p) == 4
}

// Stage returns the stage segment.
func (p ConfigPath) Stage() Name {
	if len(p) < 2 {
		return Name{}
	}
	return p[1]
}

// Item returns the stage-item segment, if any.
func (p ConfigPath) Item() (Name, bool) {
	if len(p) != 4 {
		return Name{}, false
	}
	return p[3], true
}

func (p ConfigPath) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = n.Identifier()
	}
	return strings.Join(parts, ".")
}
