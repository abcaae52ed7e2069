// Package action turns textual signatures into executable domain actions.
package action

import (
	"fmt"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// Tokenize splits a signature on spaces, keeping double-quoted spans as one token.
// Quotes are stripped. An unterminated quote is an error.
func Tokenize(signature string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		pending bool // a token has started, possibly empty ("")
	)

	for _, r := range signature {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case r == ' ' && !quoted:
			if pending {
				tokens = append(tokens, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote in %q", signature)
	}
	if pending {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// Position identifies where an action is declared.
type Position struct {
	Agent string
	Stage string
	Item  string
}

// Parse builds an Action from a signature.
//
// A leading "not" folds into the operation name. Arguments are expanded once with the
// given expander in strict mode; any unresolved reference is a configuration error naming
// the signature. The literal "none" returns the shared no-op action.
func Parse(signature string, pos Position, exp *variables.Expander) (*domain.Action, error) {
	signature = strings.TrimSpace(signature)
	if signature == domain.NoopName {
		return domain.NoopAction, nil
	}

	tokens, err := Tokenize(signature)
	if err != nil {
		return nil, domain.NewConfigError(signature, "malformed signature", err)
	}
	if len(tokens) == 0 {
		return nil, domain.NewConfigError(signature, "empty signature", nil)
	}

	name, args := tokens[0], tokens[1:]
	if name == domain.Negation {
		if len(args) == 0 {
			return nil, domain.NewConfigError(signature, "negation without operation", nil)
		}
		name, args = domain.Negation+" "+args[0], args[1:]
	}

	if exp != nil {
		args, err = exp.ExpandAll(args, variables.Strict)
		if err != nil {
			return nil, domain.NewConfigError(signature, "cannot resolve arguments", err)
		}
	}

	return &domain.Action{
		Agent:     pos.Agent,
		Stage:     pos.Stage,
		Item:      pos.Item,
		Name:      name,
		Args:      args,
		Signature: signature,
	}, nil
}

// ParseAll parses a list of signatures in order.
func ParseAll(signatures []string, pos Position, exp *variables.Expander) ([]*domain.Action, error) {
	out := make([]*domain.Action, 0, len(signatures))
	for _, sig := range signatures {
		act, err := Parse(sig, pos, exp)
		if err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, nil
}
