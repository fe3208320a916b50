package realtime

import (
	"context"
	"log/slog"
	"time"
)

const janitorInterval = time.Minute

// StartJanitor periodically drops replay buffers of channels that have had no
// subscribers and no events for longer than idle.
func StartJanitor(ctx context.Context, hub *Hub, idle time.Duration) {
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Realtime janitor stopped")
				return
			case <-ticker.C:
				if n := hub.Sweep(idle); n > 0 {
					slog.Debug("Realtime janitor swept idle channels", "count", n)
				}
			}
		}
	}()
}
