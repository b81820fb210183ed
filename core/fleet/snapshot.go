package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
	"github.com/kilianp07/robofleet/core/robot"
)

// Snapshot is the persisted state of a fleet.
type Snapshot struct {
	Robots map[model.RobotID]RobotState `json:"robots"`
	// Paths holds the remaining hops of every robot.
	Paths     map[model.RobotID][]model.VertexID `json:"paths"`
	NextID    model.RobotID                      `json:"next_id"`
	Time      float64                            `json:"time"`
	Tasks     []Task                             `json:"tasks,omitempty"`
	Active    map[model.RobotID]Task             `json:"active,omitempty"`
	SessionID string                             `json:"session_id,omitempty"`
	// Queues holds the waiting queues in arrival order.
	Queues map[model.VertexID][]model.RobotID `json:"queues,omitempty"`
}

// RobotState is the persisted state of one robot.
type RobotState struct {
	Position      model.Point    `json:"position"`
	CurrentVertex model.VertexID `json:"current_vertex"`
	TargetVertex  model.VertexID `json:"target_vertex"`
	Battery       float64        `json:"battery"`
	State         robot.Status   `json:"state"`
	IsWaiting     bool           `json:"is_waiting"`
	IsCharging    bool           `json:"is_charging"`
	EmergencyStop bool           `json:"emergency_stop"`

	Priority          float64        `json:"priority,omitempty"`
	WaitingOn         model.VertexID `json:"waiting_on"`
	PreviousVertex    model.VertexID `json:"previous_vertex"`
	ResumeTarget      model.VertexID `json:"resume_target"`
	Mission           robot.Mission  `json:"mission,omitempty"`
	InTransit         bool           `json:"in_transit,omitempty"`
	Distance          float64        `json:"distance,omitempty"`
	TasksCompleted    int            `json:"tasks_completed,omitempty"`
	WaitTime          float64        `json:"wait_time,omitempty"`
	WaitTimer         float64        `json:"wait_timer,omitempty"`
	CollisionsAvoided int            `json:"collisions_avoided,omitempty"`
}

// UnmarshalJSON defaults the optional vertex references to NoVertex.
func (s *RobotState) UnmarshalJSON(b []byte) error {
	type plain RobotState
	p := plain{
		TargetVertex:   model.NoVertex,
		WaitingOn:      model.NoVertex,
		PreviousVertex: model.NoVertex,
		ResumeTarget:   model.NoVertex,
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = RobotState(p)
	return nil
}

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

// Snapshot captures the current state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Robots:    make(map[model.RobotID]RobotState, len(m.robots)),
		Paths:     make(map[model.RobotID][]model.VertexID, len(m.robots)),
		NextID:    m.nextID,
		Time:      m.Now(),
		SessionID: m.session,
	}
	for id, r := range m.robots {
		s.Robots[id] = RobotState{
			Position:          r.Position,
			CurrentVertex:     r.Vertex,
			TargetVertex:      r.Target,
			Battery:           r.Battery,
			State:             r.Status(),
			IsWaiting:         r.Status() == robot.Waiting,
			IsCharging:        r.Status() == robot.Charging,
			EmergencyStop:     r.EmergencyStop,
			Priority:          r.Priority,
			WaitingOn:         r.WaitingOn,
			PreviousVertex:    r.Previous,
			ResumeTarget:      r.ResumeTarget,
			Mission:           r.Mission,
			InTransit:         r.InTransit,
			Distance:          r.Distance,
			TasksCompleted:    r.TasksCompleted,
			WaitTime:          r.WaitTime,
			WaitTimer:         r.WaitTimer(),
			CollisionsAvoided: r.CollisionsAvoided,
		}
		s.Paths[id] = append([]model.VertexID{}, r.Path...)
	}
	if q := m.traffic.Waiting(); len(q) > 0 {
		s.Queues = q
	}
	for _, t := range m.Tasks() {
		t.seq = 0
		s.Tasks = append(s.Tasks, t)
	}
	if len(m.active) > 0 {
		s.Active = make(map[model.RobotID]Task, len(m.active))
		for id, t := range m.active {
			t.seq = 0
			s.Active[id] = t
		}
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, fmt.Sprintf(format, args...))
}

// validate checks s against the graph without touching the fleet.
func (m *Manager) validate(s Snapshot) error {
	held := make(map[model.VertexID]model.RobotID)
	for _, id := range slices.Sorted(maps.Keys(s.Robots)) {
		st := s.Robots[id]
		if id < 0 || id >= s.NextID {
			return invalid("robot %d outside id range [0, %d)", id, s.NextID)
		}
		if !m.graph.HasVertex(st.CurrentVertex) {
			return invalid("robot %d on vertex %d: %v", id, st.CurrentVertex, navgraph.ErrInvalidVertex)
		}
		if st.TargetVertex != model.NoVertex && !m.graph.HasVertex(st.TargetVertex) {
			return invalid("robot %d targets vertex %d: %v", id, st.TargetVertex, navgraph.ErrInvalidVertex)
		}
		if st.State < robot.Idle || st.State > robot.Dead {
			return invalid("robot %d in %s", id, st.State)
		}
		if st.Battery < 0 || st.Battery > 100 {
			return invalid("robot %d battery %.2f", id, st.Battery)
		}
		if other, ok := held[st.CurrentVertex]; ok {
			return invalid("robots %d and %d share vertex %d", other, id, st.CurrentVertex)
		}
		held[st.CurrentVertex] = id
	}
	for _, id := range slices.Sorted(maps.Keys(s.Robots)) {
		path := s.Paths[id]
		for _, v := range path {
			if !m.graph.HasVertex(v) {
				return invalid("robot %d path through vertex %d: %v", id, v, navgraph.ErrInvalidVertex)
			}
		}
		if !s.Robots[id].InTransit {
			continue
		}
		if len(path) == 0 {
			return invalid("robot %d in transit without a path", id)
		}
		if other, ok := held[path[0]]; ok && other != id {
			return invalid("robot %d heads to vertex %d held by robot %d", id, path[0], other)
		}
		held[path[0]] = id
	}
	for id, path := range s.Paths {
		if _, ok := s.Robots[id]; !ok && len(path) > 0 {
			return invalid("path for unknown robot %d", id)
		}
	}
	for v, q := range s.Queues {
		if !m.graph.HasVertex(v) {
			return invalid("queue on vertex %d: %v", v, navgraph.ErrInvalidVertex)
		}
		for _, id := range q {
			if _, ok := s.Robots[id]; !ok {
				return invalid("unknown robot %d queued on vertex %d", id, v)
			}
		}
	}
	return nil
}

// Restore replaces the fleet with the content of s. Nothing changes when s
// does not fit the graph.
func (m *Manager) Restore(s Snapshot) error {
	if err := m.validate(s); err != nil {
		return err
	}
	m.ClearAll()
	m.nextID = s.NextID
	if s.SessionID != "" {
		m.session = s.SessionID
	}
	m.traffic.Advance(s.Time)

	ids := slices.Sorted(maps.Keys(s.Robots))
	for _, id := range ids {
		st := s.Robots[id]
		r := robot.Restore(id, st.State, st.WaitTimer, m.cfg.Robot)
		r.Vertex = st.CurrentVertex
		r.Previous = st.PreviousVertex
		r.Position = st.Position
		r.Target = st.TargetVertex
		r.Path = append([]model.VertexID{}, s.Paths[id]...)
		r.Battery = st.Battery
		r.Priority = st.Priority
		r.EmergencyStop = st.EmergencyStop
		r.InTransit = st.InTransit
		r.WaitingOn = model.NoVertex
		if st.State == robot.Waiting {
			r.WaitingOn = st.WaitingOn
			if r.WaitingOn == model.NoVertex && len(r.Path) > 0 {
				r.WaitingOn = r.Path[0]
			}
		}
		r.Mission = st.Mission
		r.ResumeTarget = st.ResumeTarget
		r.Distance = st.Distance
		r.TasksCompleted = st.TasksCompleted
		r.WaitTime = st.WaitTime
		r.CollisionsAvoided = st.CollisionsAvoided
		m.robots[id] = r
		if err := m.traffic.Occupy(id, r.Vertex); err != nil {
			return errors.Join(ErrInvalidSnapshot, err)
		}
	}
	for _, v := range slices.Sorted(maps.Keys(s.Queues)) {
		for _, id := range s.Queues[v] {
			m.traffic.EnqueueWait(v, id)
		}
	}
	for _, id := range ids {
		r := m.robots[id]
		if next, ok := r.Next(); ok && r.InTransit && !m.traffic.Enter(id, r.Vertex, next) {
			return invalid("robot %d cannot resume towards vertex %d", id, next)
		}
		if r.WaitingOn != model.NoVertex {
			// Snapshots without queues fall back to id order.
			m.traffic.EnqueueWait(r.WaitingOn, id)
		}
		if len(r.Path) > 0 && !m.traffic.ReservePath(id, r.Plan()) {
			m.log.Debugf("robot %d restored without reservations", id)
		}
	}

	for i, t := range s.Tasks {
		t.seq = uint64(i + 1)
		m.tasks = append(m.tasks, t)
	}
	m.taskSeq = uint64(len(s.Tasks))
	for id, t := range s.Active {
		if _, ok := m.robots[id]; ok {
			m.active[id] = t
		}
	}
	m.log.Infof("restored %d robots at t=%.2f", len(m.robots), s.Time)
	return nil
}

// SaveTo writes the current state to store. A failed save leaves the fleet
// untouched.
func (m *Manager) SaveTo(ctx context.Context, store SnapshotStore) error {
	if err := store.Save(ctx, m.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", errors.Join(ErrPersistence, err))
	}
	return nil
}

// LoadFrom replaces the fleet with the snapshot held by store.
func (m *Manager) LoadFrom(ctx context.Context, store SnapshotStore) error {
	s, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", errors.Join(ErrPersistence, err))
	}
	return m.Restore(s)
}
