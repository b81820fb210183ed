package metrics

import (
	"context"

	"github.com/kilianp07/robofleet/core/events"
	coremetrics "github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records status
// transitions on sinks implementing StatusRecorder. It stops when the context
// is canceled or the bus is closed. The returned channel is closed once the
// collector has stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[any], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.StatusRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if sc, ok := ev.(events.StatusChange); ok {
					_ = rec.RecordStatusChange(sc)
				}
			}
		}
	}()
	return done
}
