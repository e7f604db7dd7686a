package models

import (
	"math"
	"slices"
	"time"
)

// Worker is a live worker connection. It only exists while the socket is open
// and its id is not stable across reconnects.
type Worker struct {
	ID                uint64    `json:"id"`
	Name              string    `json:"name,omitempty"`
	IP                string    `json:"ip,omitempty"`
	CurrentTasks      []uint64  `json:"currentTasks"`
	AvailableTools    []Tool    `json:"availableTools"`
	LoadFactor        float64   `json:"loadFactor"`
	Capacity          int       `json:"capacity"`
	AggressiveEnabled bool      `json:"aggressiveEnabled"`
	ConnectedAt       time.Time `json:"connectedAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// EffectiveLoad is the self-reported load factor when it is usable, otherwise
// the number of executions currently held.
func (w Worker) EffectiveLoad() float64 {
	if w.LoadFactor > 0 && !math.IsInf(w.LoadFactor, 0) && !math.IsNaN(w.LoadFactor) {
		return w.LoadFactor
	}
	return float64(len(w.CurrentTasks))
}

// HasCapacity reports whether the worker declared room for another execution.
func (w Worker) HasCapacity() bool {
	return w.Capacity > len(w.CurrentTasks)
}

// Clone returns a copy that shares no slices with w.
func (w Worker) Clone() Worker {
	w.CurrentTasks = slices.Clone(w.CurrentTasks)
	w.AvailableTools = slices.Clone(w.AvailableTools)
	return w
}

// ToolIdentifiers returns the name@version set the worker advertised.
func (w Worker) ToolIdentifiers() map[string]bool {
	out := make(map[string]bool, len(w.AvailableTools))
	for _, t := range w.AvailableTools {
		out[t.Identifier()] = true
	}
	return out
}

// Module is a loaded module that owns templates and tools.
type Module struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Version  string    `json:"version,omitempty"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Target is the subset of a scan target the compiler and scheduler need.
type Target struct {
	ID           uint   `json:"id"`
	Domain       string `json:"domain"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	UserAgent    string `json:"userAgent,omitempty"`
	CustomHeader string `json:"customHeader,omitempty"`
}
