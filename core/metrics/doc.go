// Package metrics defines the interfaces used to export fleet metrics.
//
// A MetricsSink receives one FleetSample per tick. Sinks may also implement
// RobotStateRecorder, TaskRecorder or DeadlockRecorder; callers detect them
// with a type assertion. Sinks are built from configuration through
// NewMetricsSink, which returns a MultiSink when several are configured.
package metrics
