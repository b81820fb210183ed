package metrics

import (
	"context"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/robofleet/core/events"
	coremetrics "github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/infra/logger"
)

// InfluxSink writes fleet samples to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	// epoch anchors simulation time to wall-clock time.
	epoch time.Time
	// Session tags every point so that runs can be told apart.
	Session string
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
		epoch:    time.Now(),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) at(t float64) time.Time {
	return s.epoch.Add(time.Duration(t * float64(time.Second)))
}

func (s *InfluxSink) point(measurement string, t float64) *write.Point {
	p := write.NewPointWithMeasurement(measurement).SetTime(s.at(t))
	if s.Session != "" {
		p = p.AddTag("session", s.Session)
	}
	return p
}

func (s *InfluxSink) write(points ...*write.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordFleetSample writes the aggregate state of the fleet.
func (s *InfluxSink) RecordFleetSample(fs coremetrics.FleetSample) error {
	p := s.point("fleet_sample", fs.Time).
		AddField("robots", fs.Robots).
		AddField("tasks_completed", fs.TasksCompleted).
		AddField("distance", round3(fs.Distance)).
		AddField("collisions_avoided", fs.CollisionsAvoided).
		AddField("average_wait", round3(fs.AverageWait)).
		AddField("queued_tasks", fs.QueuedTasks).
		AddField("reservations", fs.Reservations)
	for _, status := range slices.Sorted(maps.Keys(fs.ByStatus)) {
		p = p.AddField("status_"+status, fs.ByStatus[status])
	}
	return s.write(p)
}

// RecordRobotStates writes one point per robot.
func (s *InfluxSink) RecordRobotStates(samples []coremetrics.RobotSample) error {
	points := make([]*write.Point, 0, len(samples))
	for _, r := range samples {
		points = append(points, s.point("robot_state", r.Time).
			AddTag("robot", r.Robot.String()).
			AddTag("status", r.Status).
			AddField("vertex", int(r.Vertex)).
			AddField("battery", round3(r.Battery)).
			AddField("priority", round3(r.Priority)))
	}
	return s.write(points...)
}

// RecordTaskOutcome writes a task outcome.
func (s *InfluxSink) RecordTaskOutcome(ev events.TaskOutcome) error {
	p := s.point("task_outcome", ev.At).
		AddTag("robot", ev.Robot.String()).
		AddTag("outcome", ev.Outcome).
		AddField("target", int(ev.Target))
	if ev.TaskID != "" {
		p = p.AddTag("task_id", ev.TaskID)
	}
	if ev.Reason != "" {
		p = p.AddField("reason", ev.Reason)
	}
	return s.write(p)
}

// RecordDeadlock writes a detected wait-for cycle.
func (s *InfluxSink) RecordDeadlock(ev events.DeadlockEvent) error {
	ids := make([]string, len(ev.Robots))
	for i, id := range ev.Robots {
		ids[i] = id.String()
	}
	p := s.point("deadlock", ev.At).
		AddTag("resolved", strconv.FormatBool(ev.Resolved)).
		AddField("robots", strings.Join(ids, ",")).
		AddField("size", len(ev.Robots))
	return s.write(p)
}

// RecordStatusChange writes a robot status transition.
func (s *InfluxSink) RecordStatusChange(ev events.StatusChange) error {
	p := s.point("status_change", ev.At).
		AddTag("robot", ev.Robot.String()).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("vertex", int(ev.Vertex)).
		AddField("battery", round3(ev.Battery))
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
