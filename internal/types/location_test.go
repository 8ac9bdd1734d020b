package types

import (
	"math"
	"testing"
)

func TestOffsetAndDistance(t *testing.T) {
	home := Location{Lat: 47.4979, Lng: 19.0402, Alt: 120}

	north := home.Offset(Vector3{North: 100})
	if d := home.DistanceTo(north); math.Abs(d-100) > 0.5 {
		t.Errorf("Expected ~100 m north, got %.3f", d)
	}
	if b := home.BearingTo(north); b > 0.1 && b < 359.9 {
		t.Errorf("Expected bearing ~0, got %.3f", b)
	}

	east := home.Offset(Vector3{East: 50, Up: 10})
	if d := home.DistanceTo(east); math.Abs(d-50) > 0.5 {
		t.Errorf("Expected ~50 m east, got %.3f", d)
	}
	if b := home.BearingTo(east); math.Abs(b-90) > 0.1 {
		t.Errorf("Expected bearing ~90, got %.3f", b)
	}
	if east.Alt != 130 {
		t.Errorf("Expected altitude 130, got %v", east.Alt)
	}
}

func TestStageValid(t *testing.T) {
	if Stage("").Valid() {
		t.Error("Empty stage must not be valid")
	}
	for _, s := range []Stage{StageInit, StageWaitForStartTime, StageTakeoff, StagePerforming,
		StageLanding, StageRTL, StageLoiter, StageLanded, StageError, StageOff} {
		if !s.Valid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}
}
