package hub

import (
	"context"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
)

// startTimer launches the heartbeat goroutine. It fires time_changed
// every tick and timer_out_of_sync when a tick arrives more than one
// full period late, which usually means the process was starved or the
// host slept. The goroutine stops itself on the first hub_stop.
func (h *Hub) startTimer() {
	interval := h.timeouts.TickInterval
	stop := make(chan struct{})

	_, err := h.Bus.ListenOnce(event.TypeHubStop, job.KindCallback,
		func(context.Context, *event.Event) error {
			close(stop)
			return nil
		})
	if err != nil {
		h.logger.Error("heartbeat timer not started", "error", err.Error())
		return
	}

	go func() {
		// One shared context chains every heartbeat of this hub run.
		tctx := event.NewContext()
		timer := time.NewTimer(interval)
		defer timer.Stop()
		target := time.Now().Add(interval)

		for {
			select {
			case <-stop:
				return
			case now := <-timer.C:
				now = now.UTC()
				h.Bus.Fire(event.TypeTimeChanged,
					map[string]any{"now": now},
					event.WithContext(tctx), event.WithTimeFired(now))

				if late := time.Since(target); late > interval {
					h.logger.Warn("heartbeat behind schedule",
						"late", late.String(), "interval", interval.String())
					h.Bus.Fire(event.TypeTimerOutOfSync,
						map[string]any{"seconds": late.Seconds()},
						event.WithContext(tctx))
				}
				target = time.Now().Add(interval)
				timer.Reset(interval)
			}
		}
	}()
}
