package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// checkMutualDependencies reports direct A <-> B dependencies.
func checkMutualDependencies(graph map[string][]string) error {
	for _, a := range sortedKeys(graph) {
		for _, b := range graph[a] {
			if a < b && slices.Contains(graph[b], a) {
				return fmt.Errorf("%w: %s <-> %s", domain.ErrDependencyCycle, a, b)
			}
		}
	}
	return nil
}

// checkCycles reports any dependency cycle, whatever its length.
func checkCycles(graph map[string][]string) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(graph))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = grey
		stack = append(stack, n)
		for _, dep := range graph[n] {
			switch color[dep] {
			case grey:
				start := slices.Index(stack, dep)
				cycle := append(append([]string(nil), stack[start:]...), dep)
				return fmt.Errorf("%w: %s", domain.ErrDependencyCycle, strings.Join(cycle, " -> "))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range sortedKeys(graph) {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(graph map[string][]string) []string {
	keys := make([]string, 0, len(graph))
	for k := range graph {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
