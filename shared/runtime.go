// Package shared holds runtime state read and written across the script
// and event goroutines.
package shared

import "sync/atomic"

// RuntimeData carries the termination handshake between the event loop and
// the script goroutine.
type RuntimeData struct {
	// RqTerm is set by the event loop when the player closes the window.
	RqTerm atomic.Bool
	// RqTermAck is set by the script goroutine once it has stopped running
	// game code.
	RqTermAck atomic.Bool
}

func NewRuntimeData() *RuntimeData {
	return &RuntimeData{}
}
