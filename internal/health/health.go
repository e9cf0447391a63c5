// Package health tracks per-component liveness for the local /healthz
// endpoint.
package health

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/etsangsplk/metadata-agent/internal/logging"
)

// Checker aggregates the health of named agent components. Components are
// healthy until reported otherwise.
type Checker struct {
	logger *slog.Logger

	mu    sync.RWMutex
	state map[string]bool
}

// NewChecker creates a Checker with no registered components.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{
		logger: logging.Default(logger).With("component", "health"),
		state:  make(map[string]bool),
	}
}

// Set records the health of a component, registering it on first use.
func (c *Checker) Set(component string, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.state[component]; ok && prev != healthy {
		if healthy {
			c.logger.Info("component recovered", "name", component)
		} else {
			c.logger.Warn("component unhealthy", "name", component)
		}
	}
	c.state[component] = healthy
}

// Healthy reports whether every registered component is healthy. An empty
// checker is healthy.
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ok := range c.state {
		if !ok {
			return false
		}
	}
	return true
}

// Unhealthy returns the sorted names of unhealthy components.
func (c *Checker) Unhealthy() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name := range maps.Keys(c.state) {
		if !c.state[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
