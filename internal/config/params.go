package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Params is the parameter table of the drone show mode.
type Params struct {
	// Motors are started this long before the scheduled takeoff.
	MotorStartLead time.Duration `yaml:"motor_start_lead"`
	// Arming is blocked for this long after a failed attempt.
	ArmingCooldown time.Duration `yaml:"arming_cooldown"`
	// How far below the takeoff altitude the commanded altitude may sink
	// while the altitude floor is active, in metres.
	AltitudeFloorTolerance float64 `yaml:"altitude_floor_tolerance"`
	// Takeoff stage must complete within this time.
	TakeoffTimeout time.Duration `yaml:"takeoff_timeout"`
	// Altitude above home that the takeoff primitive climbs to, in metres.
	TakeoffAltitude float64 `yaml:"takeoff_altitude"`
	// Home is re-anchored at this interval while waiting on the ground.
	HomeResetInterval time.Duration `yaml:"home_reset_interval"`
}

func DefaultParams() Params {
	return Params{
		MotorStartLead:         10 * time.Second,
		ArmingCooldown:         2 * time.Second,
		AltitudeFloorTolerance: 0,
		TakeoffTimeout:         15 * time.Second,
		TakeoffAltitude:        2.5,
		HomeResetInterval:      30 * time.Second,
	}
}

func (p Params) Validate() error {
	if p.MotorStartLead <= 0 {
		return fmt.Errorf("show.motor_start_lead must be > 0")
	}
	// The mode counts in milliseconds; anything shorter would truncate to a
	// cooldown that has already expired.
	if p.ArmingCooldown < time.Millisecond {
		return fmt.Errorf("show.arming_cooldown must be at least 1ms")
	}
	if p.AltitudeFloorTolerance < 0 {
		return fmt.Errorf("show.altitude_floor_tolerance must be >= 0")
	}
	if p.TakeoffTimeout <= 0 {
		return fmt.Errorf("show.takeoff_timeout must be > 0")
	}
	if p.TakeoffAltitude <= 0 {
		return fmt.Errorf("show.takeoff_altitude must be > 0")
	}
	if p.AltitudeFloorTolerance > p.TakeoffAltitude {
		return fmt.Errorf("show.altitude_floor_tolerance must not exceed show.takeoff_altitude")
	}
	if p.HomeResetInterval <= 0 {
		return fmt.Errorf("show.home_reset_interval must be > 0")
	}
	return nil
}

// Apply sets a single parameter from its settings key, e.g.
// "show.motor-start-lead" = "8s". The result is not validated.
func (p *Params) Apply(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "show.motor-start-lead":
		return setDuration(&p.MotorStartLead, key, value)
	case "show.arming-cooldown":
		return setDuration(&p.ArmingCooldown, key, value)
	case "show.takeoff-timeout":
		return setDuration(&p.TakeoffTimeout, key, value)
	case "show.home-reset-interval":
		return setDuration(&p.HomeResetInterval, key, value)
	case "show.altitude-floor-tolerance":
		return setFloat(&p.AltitudeFloorTolerance, key, value)
	case "show.takeoff-altitude":
		return setFloat(&p.TakeoffAltitude, key, value)
	default:
		return fmt.Errorf("unknown parameter: %s", key)
	}
}

// ParamKeys lists the settings keys understood by Apply.
var ParamKeys = []string{
	"show.motor-start-lead",
	"show.arming-cooldown",
	"show.takeoff-timeout",
	"show.home-reset-interval",
	"show.altitude-floor-tolerance",
	"show.takeoff-altitude",
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = f
	return nil
}

// Store holds the live parameter table. Readers on the control loop never
// block; writers are serialized.
type Store struct {
	mu      sync.Mutex
	current *atomic.Pointer[versionedParams]
}

// versionedParams is published as a unit so a reader never pairs one table
// with another table's version.
type versionedParams struct {
	params  Params
	version uint64
}

func NewStore(p Params) *Store {
	return &Store{
		current: atomic.NewPointer(&versionedParams{params: p, version: 1}),
	}
}

// Load returns the current table and its version. The version changes on
// every successful update.
func (s *Store) Load() (Params, uint64) {
	cur := s.current.Load()
	return cur.params, cur.version
}

// Update applies fn to a copy of the current table and publishes it if the
// result validates.
func (s *Store) Update(fn func(p *Params) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.params
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.current.Store(&versionedParams{params: next, version: cur.version + 1})
	return nil
}
