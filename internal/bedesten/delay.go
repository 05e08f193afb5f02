package bedesten

import (
	"context"
	"time"
)

// Delay sleeps a fixed duration before every request. The pause is
// unconditional, so the request rate stays below 1/d even after slow
// responses.
type Delay struct {
	d time.Duration
}

func NewDelay(d time.Duration) *Delay {
	return &Delay{d: d}
}

// Duration returns the configured pause.
func (p *Delay) Duration() time.Duration {
	if p == nil {
		return 0
	}
	return p.d
}

// Wait blocks for the configured duration or until ctx is done.
func (p *Delay) Wait(ctx context.Context) error {
	if p == nil || p.d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
