package assistant

import (
	"context"
	"time"
)

// SetSleep replaces the suspension between status queries.
func (p *Poller) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}
