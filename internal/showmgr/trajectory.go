package showmgr

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"show-controller/internal/types"
)

var ErrEmptyTrajectory = errors.New("trajectory has no keyframes")

// Keyframe is a trajectory point relative to the takeoff position.
type Keyframe struct {
	T     time.Duration `yaml:"t"`
	North float64       `yaml:"north"`
	East  float64       `yaml:"east"`
	Up    float64       `yaml:"up"`
}

func (k Keyframe) position() types.Vector3 {
	return types.Vector3{North: k.North, East: k.East, Up: k.Up}
}

// Trajectory is a piecewise linear path through keyframes ordered by time.
type Trajectory struct {
	Name      string     `yaml:"name"`
	Keyframes []Keyframe `yaml:"keyframes"`
}

// LoadTrajectory reads a trajectory YAML file.
func LoadTrajectory(path string) (*Trajectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseTrajectory(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseTrajectory(b []byte) (*Trajectory, error) {
	var t Trajectory
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Trajectory) Validate() error {
	if len(t.Keyframes) == 0 {
		return ErrEmptyTrajectory
	}
	if t.Keyframes[0].T != 0 {
		return fmt.Errorf("first keyframe must be at t=0, got %s", t.Keyframes[0].T)
	}
	for i := 1; i < len(t.Keyframes); i++ {
		if t.Keyframes[i].T <= t.Keyframes[i-1].T {
			return fmt.Errorf("keyframe %d: time %s is not after %s", i, t.Keyframes[i].T, t.Keyframes[i-1].T)
		}
	}
	return nil
}

// Duration is the time of the last keyframe.
func (t *Trajectory) Duration() time.Duration {
	return t.Keyframes[len(t.Keyframes)-1].T
}

// PositionAt interpolates the trajectory at show time at. Times outside the
// trajectory clamp to its first or last keyframe.
func (t *Trajectory) PositionAt(at time.Duration) types.Vector3 {
	kf := t.Keyframes
	if at <= kf[0].T {
		return kf[0].position()
	}
	if at >= kf[len(kf)-1].T {
		return kf[len(kf)-1].position()
	}

	// first keyframe after at
	lo, hi := 0, len(kf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if kf[mid].T <= at {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	a, b := kf[lo-1], kf[lo]
	f := float64(at-a.T) / float64(b.T-a.T)
	return types.Vector3{
		North: a.North + (b.North-a.North)*f,
		East:  a.East + (b.East-a.East)*f,
		Up:    a.Up + (b.Up-a.Up)*f,
	}
}
