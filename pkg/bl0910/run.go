package bl0910

import (
	"context"
	"fmt"
	"time"
)

// Run drives the scanner until ctx is done: a pass is started immediately and
// then every update interval, and the scanner advances one step every tick.
// Run owns the transport for its whole duration.
func (d *Device) Run(ctx context.Context, update, tick time.Duration) error {
	if update <= 0 || tick <= 0 {
		return fmt.Errorf("invalid intervals: update %v, tick %v", update, tick)
	}

	updates := time.NewTicker(update)
	defer updates.Stop()
	ticks := time.NewTicker(tick)
	defer ticks.Stop()

	d.Reset()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates.C:
			d.Reset()
		case <-ticks.C:
			d.Tick()
		}
	}
}
