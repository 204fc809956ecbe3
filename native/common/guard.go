package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concurrency-safe pause registry. The zero value is not usable;
// construct with NewPauses.
type Pauses struct {
	mu     sync.RWMutex
	halted map[string]bool
}

func NewPauses() *Pauses {
	return &Pauses{halted: make(map[string]bool)}
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.halted[module]
}

func (p *Pauses) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted[module] = paused
}

// Snapshot copies the current flags for status reporting.
func (p *Pauses) Snapshot() map[string]bool {
	if p == nil {
		return map[string]bool{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.halted))
	for module, paused := range p.halted {
		out[module] = paused
	}
	return out
}
