// Package showmgr owns the show: the loaded trajectory, the authorization
// flag, the scheduled start time and the cancel signal. It is written from
// the Redis and hardware goroutines and read by the control loop, so all
// state lives in atomics.
package showmgr

import (
	"time"

	"go.uber.org/atomic"

	"show-controller/internal/logger"
	"show-controller/internal/types"
)

// Positioner reports where the vehicle is and where its home is.
type Positioner interface {
	Location() (types.Location, bool)
	Home() (types.Location, bool)
}

type Manager struct {
	logger     *logger.Logger
	positioner Positioner
	now        func() time.Time

	trajectory *atomic.Pointer[Trajectory]
	revision   *atomic.Uint64
	authorized *atomic.Bool
	startTime  *atomic.Time
	cancel     *atomic.Bool
	abort      *atomic.Bool

	modeRequests chan struct{}
}

func NewManager(positioner Positioner, l *logger.Logger) *Manager {
	return &Manager{
		logger:       l.WithTag("show"),
		positioner:   positioner,
		now:          time.Now,
		trajectory:   atomic.NewPointer[Trajectory](nil),
		revision:     atomic.NewUint64(0),
		authorized:   atomic.NewBool(false),
		startTime:    atomic.NewTime(time.Time{}),
		cancel:       atomic.NewBool(false),
		abort:        atomic.NewBool(false),
		modeRequests: make(chan struct{}, 1),
	}
}

// SetTimeSource replaces the wall clock; used by tests and the simulator.
func (m *Manager) SetTimeSource(now func() time.Time) {
	m.now = now
}

// Now is the wall clock the show schedule is measured against.
func (m *Manager) Now() time.Time {
	return m.now()
}

// LoadTrajectory replaces the trajectory. A nil trajectory unloads the show.
func (m *Manager) LoadTrajectory(t *Trajectory) error {
	if t != nil {
		if err := t.Validate(); err != nil {
			return err
		}
		m.logger.Infof("Trajectory %q loaded: %d keyframes, %s", t.Name, len(t.Keyframes), t.Duration())
	} else {
		m.logger.Infof("Trajectory unloaded")
	}
	m.trajectory.Store(t)
	m.revision.Inc()
	return nil
}

// TrajectoryRevision changes every time a trajectory is loaded or unloaded,
// even when the new one is identical.
func (m *Manager) TrajectoryRevision() uint64 {
	return m.revision.Load()
}

// Authorize sets the authorization flag. Authorizing a show asks the
// framework to switch into show mode.
func (m *Manager) Authorize(authorized bool) {
	if m.authorized.Swap(authorized) == authorized {
		return
	}
	m.logger.Infof("Authorization: %v", authorized)
	if authorized {
		m.RequestSwitchToShowMode()
	}
}

// SetStartTime schedules the show. The zero time clears the schedule.
func (m *Manager) SetStartTime(t time.Time) {
	m.startTime.Store(t)
	if t.IsZero() {
		m.logger.Infof("Start time cleared")
		return
	}
	m.logger.Infof("Start time: %s", t.UTC().Format(time.RFC3339Nano))
}

// Cancel raises or clears the ground control cancel request.
func (m *Manager) Cancel(cancel bool) {
	if m.cancel.Swap(cancel) != cancel {
		m.logger.Infof("Cancel requested: %v", cancel)
	}
}

// SetAbortSwitch mirrors the local abort switch.
func (m *Manager) SetAbortSwitch(pressed bool) {
	if m.abort.Swap(pressed) != pressed {
		m.logger.Warnf("Abort switch: %v", pressed)
	}
}

// RequestSwitchToShowMode posts a one-way request to enter show mode.
// Requests are coalesced while one is pending.
func (m *Manager) RequestSwitchToShowMode() {
	select {
	case m.modeRequests <- struct{}{}:
	default:
	}
}

// ModeRequests delivers the requests posted by RequestSwitchToShowMode.
func (m *Manager) ModeRequests() <-chan struct{} {
	return m.modeRequests
}

func (m *Manager) IsAuthorized() bool {
	return m.authorized.Load()
}

func (m *Manager) HasValidTrajectory() bool {
	return m.trajectory.Load() != nil
}

func (m *Manager) StartTime() time.Time {
	return m.startTime.Load()
}

// ElapsedTimeSinceStart is negative before the start time and zero when no
// start time is set.
func (m *Manager) ElapsedTimeSinceStart() time.Duration {
	start := m.startTime.Load()
	if start.IsZero() {
		return 0
	}
	return m.now().Sub(start)
}

func (m *Manager) TrajectoryDuration() time.Duration {
	t := m.trajectory.Load()
	if t == nil {
		return 0
	}
	return t.Duration()
}

// CurrentLocation reports no fix when the positioner has none or reports the
// null island placeholder.
func (m *Manager) CurrentLocation() (types.Location, bool) {
	loc, ok := m.positioner.Location()
	if !ok || loc.IsZero() {
		return types.Location{}, false
	}
	return loc, true
}

func (m *Manager) RelativeTargetPosition(at time.Duration) (types.Vector3, bool) {
	t := m.trajectory.Load()
	if t == nil {
		return types.Vector3{}, false
	}
	return t.PositionAt(at), true
}

func (m *Manager) TargetLocation(at time.Duration) (types.Location, bool) {
	rel, ok := m.RelativeTargetPosition(at)
	if !ok {
		return types.Location{}, false
	}
	home, ok := m.positioner.Home()
	if !ok {
		return types.Location{}, false
	}
	return home.Offset(rel), true
}

func (m *Manager) CancelRequested() bool {
	return m.cancel.Load() || m.abort.Load()
}

// Snapshot is the show state published to ground control.
type Snapshot struct {
	Authorized      bool
	TrajectoryName  string
	Duration        time.Duration
	StartTime       time.Time
	CancelRequested bool
	AbortSwitch     bool
}

func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Authorized:      m.authorized.Load(),
		StartTime:       m.startTime.Load(),
		CancelRequested: m.cancel.Load(),
		AbortSwitch:     m.abort.Load(),
	}
	if t := m.trajectory.Load(); t != nil {
		s.TrajectoryName = t.Name
		s.Duration = t.Duration()
	}
	return s
}
