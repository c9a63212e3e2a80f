// Package settings applies configuration changes at runtime: a watcher reloads the
// config file and a transition tracker detects when semantic search is switched on.
package settings

import "sync"

// Transition remembers the last observed enabled value.
type Transition struct {
	mu   sync.Mutex
	prev bool
}

// NewTransition starts tracking from initial.
func NewTransition(initial bool) *Transition {
	return &Transition{prev: initial}
}

// Observe records enabled and reports whether it changed from false to true.
func (t *Transition) Observe(enabled bool) (justEnabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	justEnabled = enabled && !t.prev
	t.prev = enabled
	return justEnabled
}
