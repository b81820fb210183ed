package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/kilianp07/robofleet/api"
	"github.com/kilianp07/robofleet/api/commands"
	"github.com/kilianp07/robofleet/api/robots"
	"github.com/kilianp07/robofleet/api/snapshots"
	"github.com/kilianp07/robofleet/config"
	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/fleet"
	coremetrics "github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	coremon "github.com/kilianp07/robofleet/core/monitoring"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
	"github.com/kilianp07/robofleet/core/navgraph"
	"github.com/kilianp07/robofleet/infra/logger"
	"github.com/kilianp07/robofleet/infra/metrics"
	"github.com/kilianp07/robofleet/infra/monitoring"
	"github.com/kilianp07/robofleet/infra/mqtt"
	"github.com/kilianp07/robofleet/infra/store"
	"github.com/kilianp07/robofleet/internal/eventbus"
)

const busBuffer = 1024

// Service drives the fleet manager and connects it to telemetry, metrics and
// persistence. The run loop is the only goroutine touching Fleet.
type Service struct {
	Fleet *fleet.Manager

	cfg       *config.Config
	bus       *eventbus.Bus[any]
	sink      coremetrics.MetricsSink
	store     store.Store
	telemetry coremqtt.Telemetry
	sources   []coremqtt.CommandSource
	queue     *commands.Queue
	board     *robots.Board
	closers   []func() error
	log       logger.Logger

	restored    bool
	sinceSave   float64
	sinceReport float64
}

// Option customises a Service.
type Option func(*Service)

// WithTelemetry replaces the MQTT client. When t also implements
// CommandSource its commands are applied to the fleet.
func WithTelemetry(t coremqtt.Telemetry) Option {
	return func(s *Service) {
		s.telemetry = t
		if cs, ok := t.(coremqtt.CommandSource); ok {
			s.sources = append(s.sources, cs)
		}
	}
}

// WithStore replaces the configured snapshot store.
func WithStore(st store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithSink replaces the configured metrics sinks.
func WithSink(sink coremetrics.MetricsSink) Option {
	return func(s *Service) { s.sink = sink }
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg: cfg,
		bus: eventbus.New[any](busBuffer),
		log: logger.New("service"),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.init(); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.log.Errorf("close after failed start: %v", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	g, err := navgraph.Load(s.cfg.Graph.Path)
	if err != nil {
		return err
	}
	s.log.Infof("graph %s: %d vertices, %d lanes", s.cfg.Graph.Path, g.VertexCount(), g.LaneCount())

	if s.sink == nil {
		if s.sink, err = coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		s.closers = append(s.closers, func() error { c.Close(); return nil })
	}

	mon, err := monitoring.NewSentryMonitor(s.cfg.Sentry)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.telemetry == nil && s.cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.telemetry = client
		s.sources = append(s.sources, client)
		s.closers = append(s.closers, func() error { client.Disconnect(); return nil })
	}

	if s.store == nil && s.cfg.Persistence.Enabled() {
		if s.store, err = store.New(s.cfg.Persistence.Module()); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if s.store != nil {
		s.closers = append(s.closers, s.store.Close)
	}

	if s.cfg.API.Enabled() {
		s.queue = commands.NewQueue(s.cfg.API.Buffer, 0)
		s.board = &robots.Board{}
		s.sources = append(s.sources, s.queue)
		s.closers = append(s.closers, func() error { s.queue.Close(); return nil })
	}

	fc := s.cfg.Simulation.Fleet()
	fc.RecordRobotStates = s.cfg.Metrics.RobotStates
	flog := logger.New("fleet")
	s.Fleet = fleet.New(g, fc,
		fleet.WithSink(s.sink),
		fleet.WithReporter(&busReporter{bus: s.bus, log: flog}),
		fleet.WithLogger(flog),
	)

	if s.store != nil && s.cfg.Persistence.Restore {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.Fleet.LoadFrom(ctx, s.store)
		switch {
		case err == nil:
			s.restored = true
			s.log.Infof("resumed session %s", s.Fleet.SessionID())
			return nil
		case errors.Is(err, store.ErrNoSnapshot):
			s.log.Infof("no snapshot stored, starting a new session")
		default:
			return err
		}
	}
	for _, v := range s.cfg.Simulation.Spawn {
		if _, err := s.Fleet.Spawn(v); err != nil {
			return err
		}
	}
	return nil
}

// Restored reports whether the fleet was loaded from a stored snapshot.
func (s *Service) Restored() bool { return s.restored }

// Run ticks the fleet until the configured duration elapses or ctx is
// cancelled, then saves a final snapshot.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.board != nil {
		s.board.Publish(robots.Capture(s.Fleet))
		go func() {
			if err := serveHTTP(ctx, s.cfg.API.Addr, s.Handler()); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	forwarded := s.forwardTelemetry(ctx)

	sim := s.cfg.Simulation
	dt := sim.Tick
	steps := -1
	if sim.Duration > 0 {
		steps = int(math.Ceil(sim.Duration/dt - 1e-9))
	}
	var tick <-chan time.Time
	if sim.Realtime {
		t := time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer t.Stop()
		tick = t.C
	}
	s.log.Infof("session %s: %d robots, tick %.3fs", s.Fleet.SessionID(), len(s.Fleet.Robots()), dt)

loop:
	for n := 0; steps < 0 || n < steps; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				break loop
			default:
			}
		}
		s.step(ctx, dt)
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	s.save(saveCtx)
	s.report()

	cancel()
	<-collected
	<-forwarded
	return nil
}

func (s *Service) step(ctx context.Context, dt float64) {
	s.drainCommands()
	coremon.Guard(map[string]string{"module": "fleet", "session": s.Fleet.SessionID()}, func() {
		s.Fleet.Tick(dt)
	})
	if s.board != nil {
		s.board.Publish(robots.Capture(s.Fleet))
	}

	p := s.cfg.Persistence
	if p.SaveEvery > 0 {
		s.sinceSave += dt
		if s.sinceSave >= p.SaveEvery {
			s.sinceSave = 0
			s.save(ctx)
		}
	}
	if every := s.cfg.Simulation.ReportEvery; every > 0 {
		s.sinceReport += dt
		if s.sinceReport >= every {
			s.sinceReport = 0
			s.report()
		}
	}
}

// drainCommands applies every pending command without blocking. The result
// is acknowledged to the source the command came from.
func (s *Service) drainCommands() {
	kept := s.sources[:0]
	for _, src := range s.sources {
		if s.drain(src) {
			kept = append(kept, src)
		}
	}
	s.sources = kept
}

// drain applies the pending commands of src and reports whether it is still
// open.
func (s *Service) drain(src coremqtt.CommandSource) bool {
	ack, _ := src.(interface {
		PublishAck(commandID string, err error) error
	})
	ch := src.Commands()
	for {
		select {
		case cmd, ok := <-ch:
			if !ok {
				return false
			}
			err := s.apply(cmd)
			if err != nil {
				s.log.Warnf("command %s (%s): %v", cmd.ID, cmd.Action, err)
			}
			if ack != nil {
				if perr := ack.PublishAck(cmd.ID, err); perr != nil {
					s.log.Errorf("ack %s: %v", cmd.ID, perr)
				}
			}
		default:
			return true
		}
	}
}

// apply runs a remote command against the fleet.
func (s *Service) apply(cmd coremqtt.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	f := s.Fleet
	switch cmd.Action {
	case coremqtt.ActionAssign:
		return f.AssignTask(cmd.Target, *cmd.Robot)
	case coremqtt.ActionEnqueue:
		id, err := f.EnqueueTask(cmd.Target, cmd.RobotOr(model.NoRobot), cmd.Priority)
		if err == nil {
			s.log.Debugf("command %s queued task %s", cmd.ID, id)
		}
		return err
	case coremqtt.ActionCharge:
		return f.RouteToCharger(*cmd.Robot)
	case coremqtt.ActionToggleStop:
		return f.ToggleEmergencyStop(*cmd.Robot)
	case coremqtt.ActionStopAll:
		f.EmergencyStopAll()
	case coremqtt.ActionResumeAll:
		f.ResumeAll()
	case coremqtt.ActionRandomTasks:
		s.log.Debugf("command %s handed out %d random tasks", cmd.ID, f.AssignRandomTasks())
	case coremqtt.ActionOptimize:
		s.log.Debugf("command %s matched %d tasks", cmd.ID, f.OptimizeAssignment())
	default:
		return fmt.Errorf("%w: %q", coremqtt.ErrUnknownAction, cmd.Action)
	}
	return nil
}

// forwardTelemetry publishes bus events through the telemetry client. The
// returned channel is closed once every buffered event has been handled.
func (s *Service) forwardTelemetry(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.telemetry == nil {
		close(done)
		return done
	}
	sub := s.bus.Subscribe()
	go func() {
		defer close(done)
		defer s.bus.Unsubscribe(sub)
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				s.publish(ev)
			case <-ctx.Done():
				for {
					select {
					case ev, ok := <-sub:
						if !ok {
							return
						}
						s.publish(ev)
					default:
						return
					}
				}
			}
		}
	}()
	return done
}

func (s *Service) publish(ev any) {
	var err error
	switch e := ev.(type) {
	case events.StatusChange:
		err = s.telemetry.PublishStatus(e)
	case events.TaskOutcome:
		err = s.telemetry.PublishTaskOutcome(e)
	case events.DeadlockEvent:
		err = s.telemetry.PublishDeadlock(e)
	}
	if err != nil {
		s.log.Warnf("telemetry: %v", err)
	}
}

// Handler returns the HTTP API. It is nil when the API is disabled.
func (s *Service) Handler() http.Handler {
	if s.board == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /api/robots", robots.NewListHandler(s.board))
	mux.Handle("GET /api/robots/{id}", robots.NewRobotHandler(s.board))
	mux.Handle("GET /api/fleet", robots.NewFleetHandler(s.board))
	mux.Handle("GET /api/report", robots.NewReportHandler(s.board))
	mux.Handle("POST /api/commands", commands.NewSubmitHandler(s.queue))
	mux.Handle("GET /api/commands/{id}", commands.NewResultHandler(s.queue))
	if h, ok := s.store.(snapshots.History); ok {
		mux.Handle("GET /api/snapshots", snapshots.NewHistoryHandler(h))
	}
	return api.RequireToken(s.cfg.API.Token, mux)
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) save(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.Fleet.SaveTo(ctx, s.store); err != nil {
		s.log.Errorf("%v", err)
		coremon.CaptureException(err, map[string]string{"module": "store", "session": s.Fleet.SessionID()})
		return
	}
	s.log.Debugf("snapshot saved at t=%.2f", s.Fleet.Now())
}

func (s *Service) report() {
	m := s.Fleet.Metrics()
	s.log.Infof("t=%.1f robots=%d completed=%d distance=%.2f avoided=%d queued=%d deadlocks=%d dropped=%d",
		m.Time, m.Robots, m.TasksCompleted, m.Distance, m.CollisionsAvoided, m.QueuedTasks,
		s.Fleet.Deadlocks(), s.bus.Dropped())
	for _, r := range s.Fleet.Report() {
		s.log.Debugw("robot report", map[string]any{
			"robot":              r.Robot,
			"status":             r.Status,
			"tasks_completed":    r.TasksCompleted,
			"distance":           r.Distance,
			"wait_time":          r.WaitTime,
			"collisions_avoided": r.CollisionsAvoided,
			"battery":            r.Battery,
		})
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
