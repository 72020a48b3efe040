package pool

import "sync/atomic"

// reentrancyGuard is a non-reentrant latch around state-mutating entry
// points. The host environment serialises calls, so the only way a second
// entry can happen while the latch is held is a synchronous callback from an
// untrusted token transfer; that call is refused rather than queued.
type reentrancyGuard struct {
	entered atomic.Bool
}

func (g *reentrancyGuard) enter() error {
	if !g.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *reentrancyGuard) exit() {
	g.entered.Store(false)
}
