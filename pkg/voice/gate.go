// Package voice holds the microphone gate the engine closes while it speaks
// text that the caller may not interrupt.
package voice

import "sync/atomic"

// Gate decides whether caller audio reaches speech detection. While held,
// frames are discarded and counted.
type Gate struct {
	held    atomic.Bool
	dropped atomic.Int64
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Hold closes (true) or opens (false) the gate.
func (g *Gate) Hold(held bool) {
	g.held.Store(held)
}

// Held reports whether the gate is closed.
func (g *Gate) Held() bool {
	return g.held.Load()
}

// Admit reports whether a frame may pass, counting it when it may not.
func (g *Gate) Admit() bool {
	if g.held.Load() {
		g.dropped.Add(1)
		return false
	}
	return true
}

// Dropped returns how many frames were discarded while held.
func (g *Gate) Dropped() int64 {
	return g.dropped.Load()
}
