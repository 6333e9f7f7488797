// Package logging centralizes the structured logger used across the engine.
// Every package obtains a component-scoped entry instead of constructing its
// own logrus.Logger, so log output carries a consistent "component" field.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root *logrus.Logger
	mu   sync.Mutex
)

func base() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return root
}

// For returns a logger entry scoped to the named component, e.g. "engine",
// "executor", "wasmvm".
func For(component string) *logrus.Entry {
	return base().WithField("component", component)
}

// SetLevel adjusts the verbosity of every component logger. Intended for use
// by a host process wiring this module in; never called internally.
func SetLevel(level logrus.Level) {
	base().SetLevel(level)
}
