package core

import (
	"fmt"
	"sync"
	"time"

	"show-controller/internal/clock"
	"show-controller/internal/config"
	"show-controller/internal/hardware"
	"show-controller/internal/logger"
	"show-controller/internal/messaging"
	"show-controller/internal/mode"
	"show-controller/internal/showmgr"
	"show-controller/internal/types"
)

const (
	statusInterval   = time.Second
	commandQueueSize = 16
)

// ShowSystem is the vehicle framework around the show mode: it owns the
// control loop, routes ground commands and reports back to ground control.
type ShowSystem struct {
	cfg     config.Config
	logger  *logger.Logger
	io      HardwareIO
	redis   MessagingClient
	vehicle FlightVehicle
	clock   clock.Clock

	manager *showmgr.Manager
	params  *config.Store
	link    *groundLink
	mode    *mode.ModeDroneShow

	// closures run on the control loop
	commands chan func()

	lastStatusAt uint32
	statusArmed  bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewShowSystem wires the system. io may be nil when no local hardware is
// present.
func NewShowSystem(cfg config.Config, io HardwareIO, redis MessagingClient, vehicle FlightVehicle, clk clock.Clock, l *logger.Logger) *ShowSystem {
	s := &ShowSystem{
		cfg:      cfg,
		logger:   l.WithTag("system"),
		io:       io,
		redis:    redis,
		vehicle:  vehicle,
		clock:    clk,
		manager:  showmgr.NewManager(vehicle, l),
		params:   config.NewStore(cfg.Show),
		link:     newGroundLink(redis, l),
		commands: make(chan func(), commandQueueSize),
		stopChan: make(chan struct{}),
	}
	s.mode = mode.New(s.manager, vehicle, s.link, s.params, clk, l)
	vehicle.SetArmingGate(s.mode.AllowsArming)
	return s
}

func (s *ShowSystem) Start() error {
	s.logger.Infof("Starting show system")

	s.redis.SetCallbacks(messaging.Callbacks{
		AuthorizeCallback:  s.handleAuthorize,
		CancelCallback:     s.handleCancel,
		TakeoffCallback:    s.handleTakeoff,
		ModeCallback:       s.handleModeRequest,
		StartTimeCallback:  s.handleStartTime,
		TrajectoryCallback: s.handleTrajectory,
		SettingsCallback:   s.handleSettingsUpdate,
	})

	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.loadSettings()

	if s.cfg.Trajectory.Path != "" {
		if err := s.handleTrajectory(""); err != nil {
			s.logger.Warnf("Failed to load trajectory: %v", err)
		}
	}

	if s.io != nil {
		if err := s.io.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize hardware: %w", err)
		}
		s.io.RegisterInputCallback(hardware.ChannelAbortSwitch, s.handleAbortSwitch)
		if pressed, err := s.io.ReadDigitalInput(hardware.ChannelAbortSwitch); err != nil {
			s.logger.Warnf("Failed to read abort switch: %v", err)
		} else {
			s.manager.SetAbortSwitch(pressed)
		}
	}

	s.link.start()

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	s.wg.Add(1)
	go s.controlLoop()

	s.logger.Infof("Show system started, control loop at %d Hz", s.cfg.Loop.RateHz)
	return nil
}

func (s *ShowSystem) controlLoop() {
	defer s.wg.Done()

	period := s.cfg.Loop.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.step(period)
		}
	}
}

// step runs one control cycle.
func (s *ShowSystem) step(dt time.Duration) {
	s.drainCommands()

	select {
	case <-s.manager.ModeRequests():
		s.enterMode()
	default:
	}

	s.vehicle.Step(dt)
	s.mode.Run()

	s.updateStatusOutput()

	now := s.clock.Millis()
	if clock.Since(now, s.lastStatusAt) >= clock.Ms(statusInterval) {
		s.lastStatusAt = now
		s.link.publishStatus(s.statusFields())
	}
}

func (s *ShowSystem) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			cmd()
		default:
			return
		}
	}
}

// post queues fn for the control loop.
func (s *ShowSystem) post(fn func()) error {
	select {
	case s.commands <- fn:
		return nil
	default:
		return fmt.Errorf("command queue full")
	}
}

func (s *ShowSystem) modeActive() bool {
	return s.mode.Stage() != types.StageOff
}

func (s *ShowSystem) enterMode() {
	if s.modeActive() {
		return
	}
	// Init publishes its stage changes under the new session.
	prev := s.link.session
	session := s.link.newSession()
	if !s.mode.Init(false) {
		s.link.restoreSession(prev)
		s.logger.Warnf("Show mode refused entry")
		return
	}
	s.logger.Infof("Entered show mode (session %s)", session)
}

func (s *ShowSystem) exitMode() {
	if !s.modeActive() {
		return
	}
	s.mode.Exit()
	s.logger.Infof("Left show mode")
}

// updateStatusOutput drives the status line while the vehicle is armed.
func (s *ShowSystem) updateStatusOutput() {
	armed := s.vehicle.Armed()
	if armed == s.statusArmed {
		return
	}
	s.statusArmed = armed
	if s.io == nil {
		return
	}
	if err := s.io.WriteDigitalOutput(hardware.ChannelStatus, armed); err != nil {
		s.logger.Warnf("Failed to set status output: %v", err)
	}
}

func (s *ShowSystem) statusFields() map[string]interface{} {
	st := s.mode.Status()
	snap := s.manager.Snapshot()

	fields := map[string]interface{}{
		"stage":           string(st.Stage),
		"finished":        s.mode.Finished(),
		"stage:duration":  st.StageDuration.Milliseconds(),
		"motors-started":  st.MotorsStarted,
		"home-set":        st.HomePositionSet,
		"calibrated":      st.PreflightCalibrationDone,
		"altitude-locked": st.AltitudeLocked,
		"authorized":      snap.Authorized,
		"cancel":          snap.CancelRequested || snap.AbortSwitch,
		"trajectory":      snap.TrajectoryName,
		"duration":        snap.Duration.Milliseconds(),
		"armed":           s.vehicle.Armed(),
		"landed":          s.vehicle.Landed(),
		"wp:distance":     s.mode.WaypointDistance(),
		"wp:bearing":      s.mode.WaypointBearing(),
		"wp:crosstrack":   s.mode.CrosstrackError(),
	}
	if snap.StartTime.IsZero() {
		fields["start-time"] = ""
	} else {
		fields["start-time"] = snap.StartTime.UnixMilli()
	}
	if loc, ok := s.vehicle.Location(); ok {
		fields["lat"] = loc.Lat
		fields["lng"] = loc.Lng
		fields["alt"] = loc.Alt
	}
	return fields
}

func (s *ShowSystem) Shutdown() {
	s.logger.Infof("Shutting down show system")

	close(s.stopChan)
	s.wg.Wait()

	s.exitMode()
	s.link.stop()

	if s.io != nil {
		s.io.Cleanup()
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Warnf("Failed to close Redis client: %v", err)
	}
}
