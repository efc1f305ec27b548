package common

import "errors"

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

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

// CallGuard makes an engine's mutating entry points non-reentrant. The engine
// acquires the guard on entry and releases it on every exit path; a nested
// call observing the busy flag fails immediately. The execution model is
// single-threaded, so a plain flag suffices.
type CallGuard struct {
	busy bool
}

func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if g.busy {
		return ErrReentrantCall
	}
	g.busy = true
	return nil
}

func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.busy = false
}
