// Package sim is a kinematic multicopter for bench runs without an
// autopilot. It moves at constant horizontal and vertical speeds towards
// whatever its current flight primitive asks for.
package sim

import (
	"math"
	"sync"
	"time"

	"show-controller/internal/config"
	"show-controller/internal/logger"
	"show-controller/internal/types"
)

type phase int

const (
	phaseIdle phase = iota
	phaseTakeoff
	phaseGuided
	phaseLand
	phaseRTL
	phaseLoiter
)

const (
	landedTolerance    = 0.05 // m
	arrivalTolerance   = 0.1  // m
	rtlMinimumAltitude = 5.0  // m above ground
	calibrationTime    = 2 * time.Second
)

// ArmingGate decides whether an arming request may proceed.
type ArmingGate = func(method types.ArmingMethod) bool

type Vehicle struct {
	mu     sync.Mutex
	logger *logger.Logger

	climbRate float64
	speed     float64

	ground   float64
	position types.Location
	home     types.Location
	hasHome  bool

	armed bool
	gate  ArmingGate

	phase  phase
	target types.Location
	// RTL climbs first, then flies home, then lands.
	rtlLeg int

	elapsed          time.Duration
	calibrationStart time.Duration
	calibrating      bool
}

func NewVehicle(cfg config.SimConfig, l *logger.Logger) *Vehicle {
	origin := types.Location{Lat: cfg.HomeLat, Lng: cfg.HomeLng, Alt: cfg.HomeAlt}
	return &Vehicle{
		logger:    l.WithTag("sim"),
		climbRate: cfg.ClimbRate,
		speed:     cfg.Speed,
		ground:    origin.Alt,
		position:  origin,
		home:      origin,
		hasHome:   true,
	}
}

// SetArmingGate installs the check consulted by Arm.
func (v *Vehicle) SetArmingGate(gate ArmingGate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gate = gate
}

// Step advances the simulation by dt.
func (v *Vehicle) Step(dt time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.elapsed += dt
	if !v.armed {
		return
	}

	switch v.phase {
	case phaseTakeoff, phaseGuided, phaseLoiter:
		v.moveTowards(v.target, dt)
	case phaseLand:
		v.moveTowards(types.Location{Lat: v.position.Lat, Lng: v.position.Lng, Alt: v.ground}, dt)
	case phaseRTL:
		v.stepRTL(dt)
	}
}

func (v *Vehicle) stepRTL(dt time.Duration) {
	switch v.rtlLeg {
	case 0:
		climb := math.Max(v.position.Alt, v.ground+rtlMinimumAltitude)
		if v.moveTowards(types.Location{Lat: v.position.Lat, Lng: v.position.Lng, Alt: climb}, dt) {
			v.rtlLeg++
		}
	case 1:
		if v.moveTowards(types.Location{Lat: v.home.Lat, Lng: v.home.Lng, Alt: v.position.Alt}, dt) {
			v.rtlLeg++
		}
	case 2:
		if v.moveTowards(types.Location{Lat: v.home.Lat, Lng: v.home.Lng, Alt: v.ground}, dt) {
			v.rtlLeg++
		}
	}
}

// moveTowards reports whether the target was reached.
func (v *Vehicle) moveTowards(target types.Location, dt time.Duration) bool {
	secs := dt.Seconds()

	dist := v.position.DistanceTo(target)
	if step := v.speed * secs; dist > step {
		bearing := v.position.BearingTo(target) * math.Pi / 180
		v.position = v.position.Offset(types.Vector3{
			North: step * math.Cos(bearing),
			East:  step * math.Sin(bearing),
		})
	} else {
		v.position.Lat, v.position.Lng = target.Lat, target.Lng
	}

	dAlt := target.Alt - v.position.Alt
	if step := v.climbRate * secs; math.Abs(dAlt) > step {
		v.position.Alt += math.Copysign(step, dAlt)
	} else {
		v.position.Alt = target.Alt
	}
	if v.position.Alt < v.ground {
		v.position.Alt = v.ground
	}

	return v.position.DistanceTo(target) < arrivalTolerance &&
		math.Abs(target.Alt-v.position.Alt) < arrivalTolerance
}

func (v *Vehicle) landed() bool {
	return v.position.Alt-v.ground < landedTolerance && v.phase != phaseTakeoff
}

// Positioner

func (v *Vehicle) Location() (types.Location, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position, true
}

func (v *Vehicle) Home() (types.Location, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.home, v.hasHome
}

// Vehicle

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

func (v *Vehicle) Landed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.landed()
}

func (v *Vehicle) Arm(method types.ArmingMethod) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.armed {
		return true
	}
	if !v.landed() {
		return false
	}
	if v.gate != nil && !v.gate(method) {
		v.logger.Warnf("Arming by %s refused", method)
		return false
	}
	v.armed = true
	v.phase = phaseIdle
	v.logger.Infof("Armed (%s)", method)
	return true
}

func (v *Vehicle) Disarm() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.landed() {
		return false
	}
	if v.armed {
		v.logger.Infof("Disarmed")
	}
	v.armed = false
	v.phase = phaseIdle
	return true
}

func (v *Vehicle) SetHome(loc types.Location) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.home = loc
	v.hasHome = true
	return true
}

func (v *Vehicle) PreflightCalibrate() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.calibrating {
		v.calibrating = true
		v.calibrationStart = v.elapsed
	}
	return v.elapsed-v.calibrationStart >= calibrationTime
}

func (v *Vehicle) PrearmChecks() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasHome
}

func (v *Vehicle) TakeoffStart(altitude float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed || !v.landed() {
		return false
	}
	v.phase = phaseTakeoff
	v.target = v.position
	v.target.Alt = v.ground + altitude
	return true
}

func (v *Vehicle) TakeoffRun() {}

func (v *Vehicle) TakeoffComplete() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase == phaseTakeoff && math.Abs(v.target.Alt-v.position.Alt) < arrivalTolerance
}

func (v *Vehicle) GuidedStart() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return false
	}
	v.phase = phaseGuided
	v.target = v.position
	return true
}

// GuidedSetPosition takes a target relative to home.
func (v *Vehicle) GuidedSetPosition(target types.Vector3) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.phase != phaseGuided {
		return
	}
	v.target = v.home.Offset(target)
}

func (v *Vehicle) GuidedRun() {}

func (v *Vehicle) LandStart() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return false
	}
	v.phase = phaseLand
	return true
}

func (v *Vehicle) LandRun() {}

func (v *Vehicle) RTLStart() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed || !v.hasHome {
		return false
	}
	v.phase = phaseRTL
	v.rtlLeg = 0
	return true
}

func (v *Vehicle) RTLRun() {}

func (v *Vehicle) RTLComplete() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase == phaseRTL && v.rtlLeg > 2
}

func (v *Vehicle) LoiterStart() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return false
	}
	v.phase = phaseLoiter
	v.target = v.position
	return true
}

func (v *Vehicle) LoiterRun() {}

func (v *Vehicle) IdleRun() {}
