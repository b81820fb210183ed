package app

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/fleet"
	coremon "github.com/kilianp07/robofleet/core/monitoring"
	"github.com/kilianp07/robofleet/infra/logger"
	"github.com/kilianp07/robofleet/internal/eventbus"
)

// busReporter publishes fleet events on the bus and forwards problems to the
// log and the error monitor.
type busReporter struct {
	bus *eventbus.Bus[any]
	log logger.Logger
}

var _ fleet.Reporter = (*busReporter)(nil)

func (r *busReporter) StatusChanged(ev events.StatusChange)     { r.bus.Publish(ev) }
func (r *busReporter) TaskFinished(ev events.TaskOutcome)       { r.bus.Publish(ev) }
func (r *busReporter) DeadlockDetected(ev events.DeadlockEvent) { r.bus.Publish(ev) }

func (r *busReporter) Warning(msg string, fields map[string]any) {
	r.log.Warnf("%s%s", msg, formatFields(fields))
}

func (r *busReporter) Error(err error, fields map[string]any) {
	r.log.Errorf("%v%s", err, formatFields(fields))
	tags := map[string]string{"module": "fleet"}
	for k, v := range fields {
		tags[k] = fmt.Sprint(v)
	}
	coremon.CaptureException(err, tags)
}

func formatFields(fields map[string]any) string {
	var s string
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		s += fmt.Sprintf(" %s=%v", k, fields[k])
	}
	return s
}
