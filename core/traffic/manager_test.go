package traffic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/robofleet/core/logger"
	"github.com/kilianp07/robofleet/core/model"
)

func newManager() *Manager {
	return NewManager(DefaultConfig(), logger.NopLogger{})
}

func TestOccupyAndEnter(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Occupy(1, 0))
	require.NoError(t, m.Occupy(1, 0), "re-occupying its own vertex is fine")
	assert.ErrorIs(t, m.Occupy(2, 0), ErrVertexOccupied)
	require.NoError(t, m.Occupy(2, 3))

	assert.False(t, m.Enter(2, 3, 0), "vertex held by robot 1")
	assert.True(t, m.Enter(1, 0, 1))
	holder, ok := m.LaneOccupant(0, 1)
	assert.True(t, ok)
	assert.Equal(t, model.RobotID(1), holder)
	_, ok = m.LaneOccupant(1, 0)
	assert.False(t, ok, "lanes are tracked per direction")

	// 0 stays held until robot 1 arrives.
	require.NoError(t, m.Occupy(2, 4))
	assert.False(t, m.Enter(2, 4, 0))

	m2 := newManager()
	require.NoError(t, m2.Occupy(1, 0))
	require.NoError(t, m2.Occupy(2, 5))
	assert.True(t, m2.Enter(1, 0, 1))
	m2.Vacate(0)
	assert.False(t, m2.Enter(2, 1, 0), "opposite direction is busy")
}

func TestArriveWakesNextWaiter(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Occupy(1, 0))
	require.NoError(t, m.Occupy(2, 5))
	require.NoError(t, m.Occupy(3, 6))
	assert.True(t, m.EnqueueWait(0, 2))
	assert.True(t, m.EnqueueWait(0, 3))
	assert.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2}))

	require.True(t, m.Enter(1, 0, 1))
	next, ok := m.Arrive(1, 0, 1)
	assert.True(t, ok)
	assert.Equal(t, model.RobotID(2), next, "FIFO order")
	assert.Equal(t, []model.RobotID{3}, m.QueueOf(0))

	_, held := m.OccupantOf(0)
	assert.False(t, held)
	holder, _ := m.OccupantOf(1)
	assert.Equal(t, model.RobotID(1), holder)
	_, ok = m.LaneOccupant(0, 1)
	assert.False(t, ok)
	assert.Empty(t, m.ReservationsOf(1), "reservation on 1 consumed")
}

func TestQueues(t *testing.T) {
	m := newManager()
	assert.True(t, m.EnqueueWait(4, 1))
	assert.False(t, m.EnqueueWait(4, 1), "no duplicates")
	assert.True(t, m.EnqueueWait(4, 2))
	assert.Equal(t, []model.RobotID{1, 2}, m.QueueOf(4))

	assert.True(t, m.DequeueWait(4, 1))
	assert.False(t, m.DequeueWait(4, 1))
	assert.Equal(t, map[model.VertexID][]model.RobotID{4: {2}}, m.Waiting())

	next, ok := m.Vacate(4)
	assert.True(t, ok)
	assert.Equal(t, model.RobotID(2), next)
	_, ok = m.Vacate(4)
	assert.False(t, ok)
	assert.Empty(t, m.Waiting())
}

func TestReservePathAllOrNothing(t *testing.T) {
	m := newManager()
	require.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2, 3}))
	assert.Equal(t, []model.VertexID{1, 2}, m.ReservationsOf(1), "interior vertices only")

	assert.False(t, m.ReservePath(2, []model.VertexID{5, 4, 2, 6}))
	assert.Empty(t, m.ReservationsOf(2), "a refused request records nothing")
	assert.True(t, m.Reservable(2, 4))

	rs := m.Reservations()
	require.Len(t, rs, 2)
	assert.Equal(t, Reservation{Vertex: 1, Robot: 1, Expiry: 2}, rs[0])
	assert.Equal(t, Reservation{Vertex: 2, Robot: 1, Expiry: 4}, rs[1])
}

func TestReservePathReplacesPrevious(t *testing.T) {
	m := newManager()
	require.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2, 3}))
	require.True(t, m.ReservePath(1, []model.VertexID{0, 7, 3}))
	assert.Equal(t, []model.VertexID{7}, m.ReservationsOf(1))
	assert.True(t, m.ReservePath(2, []model.VertexID{5, 1, 6}))
}

func TestReservePathRespectsOccupancy(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Occupy(9, 1))
	assert.False(t, m.ReservePath(1, []model.VertexID{0, 1, 2}))
	assert.True(t, m.CanReserve(9, []model.VertexID{0, 1, 2}))
}

func TestReservationsExpire(t *testing.T) {
	m := newManager()
	require.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2, 3}))
	assert.False(t, m.CanReserve(2, []model.VertexID{5, 2, 6}))

	m.Advance(2.5)
	assert.Equal(t, 2.5, m.Now())
	assert.Equal(t, []model.VertexID{2}, m.ReservationsOf(1), "step 1 expired at t=2")
	m.Advance(2)
	assert.True(t, m.CanReserve(2, []model.VertexID{5, 2, 6}))
	assert.Empty(t, m.Reservations())
}

func TestReserveDestination(t *testing.T) {
	m := NewManager(Config{TransitTime: 1, ReserveDestination: true}, nil)
	require.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2}))
	assert.Equal(t, []model.VertexID{1, 2}, m.ReservationsOf(1))
	assert.False(t, m.ReservePath(2, []model.VertexID{3, 2}))
}

func TestRelease(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Occupy(1, 0))
	require.NoError(t, m.Occupy(2, 5))
	require.True(t, m.ReservePath(1, []model.VertexID{0, 1, 2, 3}))
	require.True(t, m.Enter(1, 0, 1))
	m.EnqueueWait(1, 2)
	m.EnqueueWait(8, 1)

	woken := m.Release(1, 0)
	assert.Equal(t, []model.RobotID{2}, woken, "robot 2 waited for vertex 1")
	assert.Empty(t, m.ReservationsOf(1))
	_, ok := m.LaneOccupant(0, 1)
	assert.False(t, ok)
	holder, ok := m.OccupantOf(0)
	assert.True(t, ok)
	assert.Equal(t, model.RobotID(1), holder, "the vertex it stands on is kept")
	assert.Empty(t, m.QueueOf(8))

	m.Forget(1)
	_, ok = m.OccupantOf(0)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Occupy(1, 0))
	m.ReservePath(1, []model.VertexID{0, 1, 2})
	m.EnqueueWait(3, 1)
	m.Advance(1)
	m.Reset()
	assert.Empty(t, m.Occupied())
	assert.Empty(t, m.Reservations())
	assert.Empty(t, m.Waiting())
	assert.Zero(t, m.Now())
}

// TestReservationMutualExclusion issues random reservation requests and
// checks that no vertex is ever promised to two robots at once.
func TestReservationMutualExclusion(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := newManager()
	for step := 0; step < 500; step++ {
		robot := model.RobotID(rng.Intn(5))
		path := make([]model.VertexID, 2+rng.Intn(5))
		for i := range path {
			path[i] = model.VertexID(rng.Intn(12))
		}
		m.ReservePath(robot, path)
		if rng.Intn(4) == 0 {
			m.Advance(rng.Float64() * 3)
		}
		if rng.Intn(10) == 0 {
			m.Release(robot, model.NoVertex)
		}

		holders := map[model.VertexID]model.RobotID{}
		for _, r := range m.Reservations() {
			if r.Expiry <= m.Now() {
				continue
			}
			if h, ok := holders[r.Vertex]; ok {
				require.Equal(t, h, r.Robot, "step %d: vertex %d promised twice", step, r.Vertex)
			}
			holders[r.Vertex] = r.Robot
		}
	}
}
