package domain

import (
	"fmt"
	"strings"
)

// Negation is the signature prefix that inverts an action's outcome.
const Negation = "not"

// NoopName is the reserved signature of the no-op action.
const NoopName = "none"

// Action is one executable operation, bound to the stage-item that declared it.
// Args are resolved once, when the action is built, and never re-resolved.
type Action struct {
	Agent     string   `json:"agent,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	Item      string   `json:"item,omitempty"`
	Name      string   `json:"name"`
	Args      []string `json:"args,omitempty"`
	Signature string   `json:"signature"`
}

// NoopAction is shared by every "none" signature.
var NoopAction = &Action{Name: NoopName, Signature: NoopName}

// Negated reports whether the action name carries the negation prefix.
func (a *Action) Negated() bool {
	return strings.HasPrefix(a.Name, Negation+" ")
}

// Operation returns the name used for dispatch, without negation.
func (a *Action) Operation() string {
	return strings.TrimPrefix(a.Name, Negation+" ")
}

// IsNoop reports whether this is the reserved no-op action.
func (a *Action) IsNoop() bool {
	return a == NoopAction || a.Name == NoopName
}

// Arg returns the i-th argument or an empty string.
func (a *Action) Arg(i int) string {
	if i < 0 || i >= len(a.Args) {
		return ""
	}
	return a.Args[i]
}

func (a *Action) String() string {
	if a.Signature != "" {
		return a.Signature
	}
	if len(a.Args) == 0 {
		return a.Name
	}
	return fmt.Sprintf("%s %s", a.Name, strings.Join(a.Args, " "))
}

// ActionResult is the immutable outcome of one action.
type ActionResult struct {
	Action  *Action `json:"action"`
	Success bool    `json:"success"`
	Payload any     `json:"payload,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// NewResult creates a result for the given action.
func NewResult(action *Action, success bool, payload any) *ActionResult {
	return &ActionResult{Action: action, Success: success, Payload: payload}
}

// Succeeded is a shorthand for a successful result.
func Succeeded(action *Action, payload any) *ActionResult {
	return NewResult(action, true, payload)
}

// Failed creates a failed result recording the cause.
func Failed(action *Action, err error) *ActionResult {
	r := NewResult(action, false, nil)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Flip returns a new result with the success flag inverted.
func (r *ActionResult) Flip() *ActionResult {
	flipped := *r
	flipped.Success = !r.Success
	return &flipped
}
