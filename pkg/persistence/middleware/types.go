// Package middleware wraps a ports.TaskStore to add behavior to task records at rest.
package middleware

import "github.com/aretw0/stagecraft/pkg/ports"

// Middleware allows wrapping a TaskStore to add behavior.
type Middleware func(ports.TaskStore) ports.TaskStore

// Chain wraps store with mws. The first middleware is the outermost.
func Chain(store ports.TaskStore, mws ...Middleware) ports.TaskStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
