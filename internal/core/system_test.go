package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"show-controller/internal/clock"
	"show-controller/internal/config"
	"show-controller/internal/hardware"
	"show-controller/internal/logger"
	"show-controller/internal/messaging"
	"show-controller/internal/showmgr"
	"show-controller/internal/sim"
	"show-controller/internal/types"
)

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks
	hash      map[string]string
	connected bool
	closed    bool

	stages   []publishedStage
	texts    []string
	statuses []map[string]interface{}
}

type publishedStage struct {
	session, from, to, reason string
}

func newMockMessagingClient() *mockMessagingClient {
	return &mockMessagingClient{hash: make(map[string]string)}
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) Connect() error                             { m.connected = true; return nil }
func (m *mockMessagingClient) StartListening() error                      { return nil }
func (m *mockMessagingClient) Close() error                               { m.closed = true; return nil }

func (m *mockMessagingClient) GetHashField(hash, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hash[hash+"/"+field], nil
}

func (m *mockMessagingClient) setHashField(hash, field, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash[hash+"/"+field] = value
}

func (m *mockMessagingClient) PublishStage(session, from, to, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, publishedStage{session, from, to, reason})
	return nil
}

func (m *mockMessagingClient) PublishText(session, severity, text string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockMessagingClient) PublishStatus(fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, fields)
	return nil
}

// Mock HardwareIO
type mockHardwareIO struct {
	initialized    bool
	cleanedUp      bool
	digitalOutputs map[string]bool
	digitalInputs  map[string]bool
	inputCallbacks map[string]hardware.InputCallback
}

func newMockHardwareIO() *mockHardwareIO {
	return &mockHardwareIO{
		digitalOutputs: make(map[string]bool),
		digitalInputs:  make(map[string]bool),
		inputCallbacks: make(map[string]hardware.InputCallback),
	}
}

func (m *mockHardwareIO) Initialize() error { m.initialized = true; return nil }
func (m *mockHardwareIO) Cleanup()          { m.cleanedUp = true }

func (m *mockHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	return m.digitalInputs[channel], nil
}

func (m *mockHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	m.digitalOutputs[channel] = value
	return nil
}

func (m *mockHardwareIO) RegisterInputCallback(channel string, callback hardware.InputCallback) {
	m.inputCallbacks[channel] = callback
}

// SimulateInput triggers an input callback
func (m *mockHardwareIO) SimulateInput(channel string, value bool) error {
	if cb, ok := m.inputCallbacks[channel]; ok {
		return cb(channel, value)
	}
	return fmt.Errorf("no callback for %s", channel)
}

const testPeriod = 20 * time.Millisecond

type testSystem struct {
	*ShowSystem
	io      *mockHardwareIO
	redis   *mockMessagingClient
	vehicle *sim.Vehicle
	clk     *clock.Fake
	epoch   time.Time
}

// Test helper
func newTestShowSystem(t *testing.T) *testSystem {
	t.Helper()
	return newTestShowSystemWithConfig(t, config.Default())
}

func newTestShowSystemWithConfig(t *testing.T, cfg config.Config) *testSystem {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelNone)
	clk := clock.NewFake(0)
	vehicle := sim.NewVehicle(cfg.Sim, l)
	ts := &testSystem{
		io:      newMockHardwareIO(),
		redis:   newMockMessagingClient(),
		vehicle: vehicle,
		clk:     clk,
		epoch:   time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC),
	}
	ts.ShowSystem = NewShowSystem(cfg, ts.io, ts.redis, vehicle, clk, l)
	ts.manager.SetTimeSource(ts.wallNow)
	ts.link.now = ts.wallNow
	return ts
}

func (ts *testSystem) wallNow() time.Time {
	return ts.epoch.Add(time.Duration(ts.clk.Millis()) * time.Millisecond)
}

func (ts *testSystem) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += testPeriod {
		ts.clk.Advance(testPeriod)
		ts.step(testPeriod)
	}
}

// runUntil steps until cond holds and reports whether it did within limit.
func (ts *testSystem) runUntil(limit time.Duration, cond func() bool) bool {
	for elapsed := time.Duration(0); elapsed < limit; elapsed += testPeriod {
		if cond() {
			return true
		}
		ts.clk.Advance(testPeriod)
		ts.step(testPeriod)
	}
	return cond()
}

// ===== Construction =====

func TestNewShowSystem(t *testing.T) {
	ts := newTestShowSystem(t)

	if ts.mode.Stage() != types.StageOff {
		t.Errorf("expected mode off, got %s", ts.mode.Stage())
	}
	if ts.modeActive() {
		t.Error("mode must not be active before a request")
	}
}

// ===== Mode switching =====

func TestAuthorizationEntersShowMode(t *testing.T) {
	ts := newTestShowSystem(t)

	if err := ts.handleAuthorize(true); err != nil {
		t.Fatalf("handleAuthorize failed: %v", err)
	}
	if ts.modeActive() {
		t.Fatal("mode must only be entered on the control loop")
	}
	ts.run(testPeriod)
	if !ts.modeActive() {
		t.Fatal("expected show mode entered")
	}
	if ts.link.session == "" {
		t.Error("expected a session id")
	}
}

func TestModeExitRequest(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.handleModeRequest(true)
	ts.run(testPeriod)
	if !ts.modeActive() {
		t.Fatal("expected show mode entered")
	}

	if err := ts.handleModeRequest(false); err != nil {
		t.Fatalf("handleModeRequest failed: %v", err)
	}
	ts.run(testPeriod)
	if ts.modeActive() {
		t.Error("expected show mode left")
	}
}

func TestReentryStartsNewSession(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.handleModeRequest(true)
	ts.run(testPeriod)
	first := ts.link.session

	ts.handleModeRequest(false)
	ts.run(testPeriod)
	ts.handleModeRequest(true)
	ts.run(testPeriod)

	if ts.link.session == first {
		t.Error("expected a new session on re-entry")
	}
}

func TestRefusedEntryKeepsSession(t *testing.T) {
	cfg := config.Default()
	cfg.Sim.HomeLat, cfg.Sim.HomeLng, cfg.Sim.HomeAlt = 0, 0, 0
	ts := newTestShowSystemWithConfig(t, cfg)
	before := ts.link.session

	ts.handleModeRequest(true)
	ts.run(testPeriod)

	if ts.modeActive() {
		t.Fatal("expected entry refused without a position fix")
	}
	if ts.link.session != before {
		t.Errorf("expected session %q kept, got %q", before, ts.link.session)
	}
}

// ===== Commands =====

func TestTakeoffCommandRunsOnLoop(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.handleModeRequest(true)
	if !ts.runUntil(5*time.Second, func() bool { return ts.mode.Stage() == types.StageWaitForStartTime }) {
		t.Fatalf("expected preflight to finish, stage %s", ts.mode.Stage())
	}

	if !ts.vehicle.Arm(types.ArmingMethodGCS) {
		t.Fatal("GCS arming must be allowed without an authorized show")
	}
	if err := ts.handleTakeoff(3); err != nil {
		t.Fatalf("handleTakeoff failed: %v", err)
	}
	ts.run(2 * testPeriod)
	if got := ts.mode.Stage(); got != types.StageTakeoff {
		t.Fatalf("expected %s, got %s", types.StageTakeoff, got)
	}

	if !ts.runUntil(10*time.Second, func() bool { return ts.mode.Stage() == types.StageLoiter }) {
		t.Errorf("expected loiter after test takeoff, stage %s", ts.mode.Stage())
	}
}

func TestRefusedTakeoffIsReported(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.link.start()

	ts.handleTakeoff(0)
	ts.run(testPeriod)
	ts.link.stop()

	ts.redis.mu.Lock()
	defer ts.redis.mu.Unlock()
	if len(ts.redis.texts) != 1 || ts.redis.texts[0] != "Takeoff refused" {
		t.Errorf("unexpected texts %v", ts.redis.texts)
	}
}

func TestCommandQueueFull(t *testing.T) {
	ts := newTestShowSystem(t)
	for i := 0; i < commandQueueSize; i++ {
		if err := ts.post(func() {}); err != nil {
			t.Fatalf("post %d failed: %v", i, err)
		}
	}
	if err := ts.post(func() {}); err == nil {
		t.Error("expected an error when the queue is full")
	}
}

func TestStartTimeInPastRejected(t *testing.T) {
	ts := newTestShowSystem(t)
	if err := ts.handleStartTime(ts.wallNow().Add(-time.Minute)); err == nil {
		t.Error("expected a past start time to be rejected")
	}
	start := ts.wallNow().Add(time.Hour)
	if err := ts.handleStartTime(start); err != nil {
		t.Fatalf("handleStartTime failed: %v", err)
	}
	if !ts.manager.StartTime().Equal(start) {
		t.Error("start time not stored")
	}
	ts.handleStartTime(time.Time{})
	if !ts.manager.StartTime().IsZero() {
		t.Error("expected start time cleared")
	}
}

func TestCancelCommand(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.handleCancel(true)
	if !ts.manager.CancelRequested() {
		t.Error("expected cancel requested")
	}
	ts.handleCancel(false)
	if ts.manager.CancelRequested() {
		t.Error("expected cancel cleared")
	}
}

// ===== Settings =====

func TestSettingsUpdate(t *testing.T) {
	ts := newTestShowSystem(t)

	ts.redis.setHashField(messaging.KeySettingsHash, "show.arming-cooldown", "5s")
	if err := ts.handleSettingsUpdate("show.arming-cooldown"); err != nil {
		t.Fatalf("handleSettingsUpdate failed: %v", err)
	}
	p, _ := ts.params.Load()
	if p.ArmingCooldown != 5*time.Second {
		t.Errorf("expected cooldown 5s, got %s", p.ArmingCooldown)
	}

	ts.redis.setHashField(messaging.KeySettingsHash, "show.takeoff-timeout", "-3s")
	if err := ts.handleSettingsUpdate("show.takeoff-timeout"); err == nil {
		t.Error("expected an invalid value to be rejected")
	}
	p, _ = ts.params.Load()
	if p.TakeoffTimeout != config.DefaultParams().TakeoffTimeout {
		t.Errorf("rejected value must not be applied, got %s", p.TakeoffTimeout)
	}

	if err := ts.handleSettingsUpdate("scooter.brake-hibernation"); err != nil {
		t.Errorf("foreign settings must be ignored, got %v", err)
	}
}

// ===== Hardware =====

func TestAbortSwitchCancelsShow(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.io.inputCallbacks[hardware.ChannelAbortSwitch] = ts.handleAbortSwitch

	ts.io.SimulateInput(hardware.ChannelAbortSwitch, true)
	if !ts.manager.CancelRequested() {
		t.Error("expected the abort switch to cancel")
	}
	ts.io.SimulateInput(hardware.ChannelAbortSwitch, false)
	if ts.manager.CancelRequested() {
		t.Error("expected cancel cleared on release")
	}
}

func TestStatusOutputFollowsArmed(t *testing.T) {
	ts := newTestShowSystem(t)

	ts.vehicle.Arm(types.ArmingMethodRC)
	ts.run(testPeriod)
	if !ts.io.digitalOutputs[hardware.ChannelStatus] {
		t.Error("expected status output on while armed")
	}
	ts.vehicle.Disarm()
	ts.run(testPeriod)
	if ts.io.digitalOutputs[hardware.ChannelStatus] {
		t.Error("expected status output off while disarmed")
	}
}

// ===== Lifecycle =====

func TestStartAndShutdown(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.redis.setHashField(messaging.KeySettingsHash, "show.takeoff-altitude", "3")
	ts.io.digitalInputs[hardware.ChannelAbortSwitch] = true

	if err := ts.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.Shutdown()

	if !ts.redis.connected || !ts.redis.closed {
		t.Error("expected Redis connected and closed")
	}
	if ts.redis.callbacks.TakeoffCallback == nil || ts.redis.callbacks.SettingsCallback == nil {
		t.Error("expected callbacks registered")
	}
	if !ts.io.initialized || !ts.io.cleanedUp {
		t.Error("expected hardware initialized and cleaned up")
	}
	if _, ok := ts.io.inputCallbacks[hardware.ChannelAbortSwitch]; !ok {
		t.Error("expected abort switch callback registered")
	}
	if !ts.manager.CancelRequested() {
		t.Error("expected initial abort switch state applied")
	}
	if p, _ := ts.params.Load(); p.TakeoffAltitude != 3 {
		t.Errorf("expected persisted takeoff altitude 3, got %.1f", p.TakeoffAltitude)
	}
}

// ===== End to end with the simulated vehicle =====

const cruiseTrajectory = `
name: cruise
keyframes:
  - {t: 0s, north: 0, east: 0, up: 0}
  - {t: 5s, north: 0, east: 0, up: 10}
  - {t: 30s, north: 0, east: 0, up: 10}
`

func TestScheduleChangeMidShowReturnsHome(t *testing.T) {
	tests := []struct {
		name   string
		change func(ts *testSystem) error
	}{
		{"start time cleared", func(ts *testSystem) error {
			return ts.handleStartTime(time.Time{})
		}},
		{"start time moved ahead", func(ts *testSystem) error {
			return ts.handleStartTime(ts.wallNow().Add(10 * time.Minute))
		}},
		{"trajectory reloaded", func(ts *testSystem) error {
			tr, err := showmgr.ParseTrajectory([]byte(cruiseTrajectory))
			if err != nil {
				return err
			}
			return ts.manager.LoadTrajectory(tr)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestShowSystem(t)
			tr, err := showmgr.ParseTrajectory([]byte(cruiseTrajectory))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if err := ts.manager.LoadTrajectory(tr); err != nil {
				t.Fatalf("load: %v", err)
			}
			ts.manager.SetStartTime(ts.wallNow().Add(15 * time.Second))
			ts.handleAuthorize(true)

			if !ts.runUntil(time.Minute, func() bool { return ts.mode.Stage() == types.StagePerforming }) {
				t.Fatalf("show did not start, stage %s", ts.mode.Stage())
			}
			ts.run(10 * time.Second)

			if err := tt.change(ts); err != nil {
				t.Fatalf("change rejected: %v", err)
			}
			ts.run(testPeriod)
			if got := ts.mode.Stage(); got != types.StageRTL {
				t.Fatalf("expected %s, got %s", types.StageRTL, got)
			}

			if !ts.runUntil(2*time.Minute, func() bool { return ts.mode.Stage() == types.StageLanded }) {
				t.Fatalf("vehicle did not return, stage %s", ts.mode.Stage())
			}
			if ts.vehicle.Armed() {
				t.Error("expected disarmed after returning")
			}
		})
	}
}

func TestScheduledShowInSimulation(t *testing.T) {
	ts := newTestShowSystem(t)
	ts.link.start()

	tr, err := showmgr.ParseTrajectory([]byte(`
name: hop
keyframes:
  - {t: 0s, north: 0, east: 0, up: 0}
  - {t: 4s, north: 0, east: 0, up: 3}
  - {t: 10s, north: 5, east: 0, up: 3}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ts.manager.LoadTrajectory(tr); err != nil {
		t.Fatalf("load: %v", err)
	}
	ts.manager.SetStartTime(ts.wallNow().Add(15 * time.Second))
	ts.handleAuthorize(true)

	if !ts.runUntil(2*time.Minute, func() bool { return ts.mode.Stage() == types.StageLanded }) {
		t.Fatalf("show did not complete, stage %s", ts.mode.Stage())
	}
	if ts.vehicle.Armed() {
		t.Error("expected disarmed after landing")
	}
	if finished, _ := ts.statusFields()["finished"].(bool); !finished {
		t.Error("expected status to report the show finished")
	}
	ts.link.stop()

	ts.redis.mu.Lock()
	defer ts.redis.mu.Unlock()

	var got []string
	for _, s := range ts.redis.stages {
		got = append(got, s.to)
		if s.session == "" {
			t.Error("stage event without session")
		}
	}
	want := []string{"init", "wait-for-start-time", "takeoff", "performing", "landing", "landed"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}
	if len(ts.redis.statuses) == 0 {
		t.Error("expected periodic status")
	}
}
