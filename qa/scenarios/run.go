package scenarios

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kilianp07/robofleet/core/fleet"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/infra/logger"
)

const defaultTick = 0.1

// Result summarises a scenario run.
type Result struct {
	Name      string
	Metrics   metrics.FleetSample
	Deadlocks int
	Queued    int
	Robots    []fleet.RobotView
	Report    []fleet.RobotReport
}

// Run plays the scenario and returns its result. Tasks are submitted to the
// queue when the clock reaches their time.
func Run(sc *Scenario, opts ...fleet.Option) (Result, error) {
	g, err := sc.LoadGraph()
	if err != nil {
		return Result{}, err
	}
	cfg := fleet.DefaultConfig()
	cfg.Optimize = sc.Optimize
	opts = append([]fleet.Option{fleet.WithLogger(logger.NopLogger{})}, opts...)
	m := fleet.New(g, cfg, opts...)
	for _, v := range sc.Robots {
		if _, err := m.Spawn(v); err != nil {
			return Result{}, err
		}
	}

	tasks := slices.Clone(sc.Tasks)
	slices.SortStableFunc(tasks, func(a, b TaskDef) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})
	dt := sc.Tick
	if dt <= 0 {
		dt = defaultTick
	}
	for m.Now() < sc.Duration-1e-9 {
		for len(tasks) > 0 && tasks[0].At <= m.Now()+1e-9 {
			t := tasks[0]
			tasks = tasks[1:]
			id := model.NoRobot
			if t.Robot != nil {
				id = model.RobotID(*t.Robot)
			}
			if _, err := m.EnqueueTask(model.VertexID(t.Target), id, t.Priority); err != nil {
				return Result{}, fmt.Errorf("task to %d: %w", t.Target, err)
			}
		}
		m.Tick(dt)
	}
	return Result{
		Name:      sc.Name,
		Metrics:   m.Metrics(),
		Deadlocks: m.Deadlocks(),
		Queued:    len(m.Tasks()),
		Robots:    m.Robots(),
		Report:    m.Report(),
	}, nil
}

// Check compares res with the expectations of sc.
func Check(sc *Scenario, res Result) error {
	var errs []error
	e := sc.Expected
	if res.Metrics.TasksCompleted < e.Completed {
		errs = append(errs, fmt.Errorf("completed %d tasks, expected at least %d", res.Metrics.TasksCompleted, e.Completed))
	}
	if e.MaxDeadlocks != nil && res.Deadlocks > *e.MaxDeadlocks {
		errs = append(errs, fmt.Errorf("%d deadlocks, expected at most %d", res.Deadlocks, *e.MaxDeadlocks))
	}
	if e.AllIdle {
		for _, r := range res.Robots {
			if r.Status != robot.Idle {
				errs = append(errs, fmt.Errorf("robot %d is %s", r.ID, r.Status))
			}
		}
	}
	if e.EmptyQueue && res.Queued > 0 {
		errs = append(errs, fmt.Errorf("%d tasks still queued", res.Queued))
	}
	return errors.Join(errs...)
}
