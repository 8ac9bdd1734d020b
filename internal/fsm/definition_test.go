package fsm

import (
	"testing"

	"show-controller/internal/types"
)

func TestShowDefinitionValidates(t *testing.T) {
	if err := NewShowDefinition().Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestShowDefinitionTransitions(t *testing.T) {
	d := NewShowDefinition()

	allowed := []struct{ from, to types.Stage }{
		{types.StageOff, types.StageInit},
		{types.StageInit, types.StageWaitForStartTime},
		{types.StageWaitForStartTime, types.StageTakeoff},
		{types.StageWaitForStartTime, types.StageLanded},
		{types.StageWaitForStartTime, types.StageRTL},
		{types.StageWaitForStartTime, types.StageError},
		{types.StageTakeoff, types.StagePerforming},
		{types.StageTakeoff, types.StageLoiter},
		{types.StageTakeoff, types.StageError},
		{types.StagePerforming, types.StageLanding},
		{types.StagePerforming, types.StageRTL},
		{types.StageLanding, types.StageLanded},
		{types.StageRTL, types.StageLanded},
		{types.StageLoiter, types.StageLanded},
		{types.StagePerforming, types.StageOff},
		{types.StageError, types.StageOff},
	}
	for _, tc := range allowed {
		if !d.Allows(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to types.Stage }{
		{types.StageInit, types.StageTakeoff},
		{types.StagePerforming, types.StageError},
		{types.StageLanding, types.StageRTL},
		{types.StageLanded, types.StageWaitForStartTime},
		{types.StageError, types.StageInit},
		{types.StageTakeoff, types.StageLanded},
		{types.StageWaitForStartTime, types.Stage("")},
	}
	for _, tc := range forbidden {
		if d.Allows(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStages(t *testing.T) {
	d := NewShowDefinition()
	for _, s := range Stages {
		want := s == types.StageLanded || s == types.StageError
		if d.IsTerminal(s) != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, d.IsTerminal(s), want)
		}
		if want && len(d.Successors(s)) != 0 {
			t.Errorf("Terminal stage %s has successors %v", s, d.Successors(s))
		}
	}
}

func TestValidateRejectsBrokenTables(t *testing.T) {
	cases := []struct {
		name string
		def  *Definition
	}{
		{"UndeclaredInitial", NewDefinition().Stage(types.StageInit).Initial(types.StageOff)},
		{"UndeclaredTarget", NewDefinition().Stage(types.StageInit).
			Transition(types.StageInit, types.StageLanded).Initial(types.StageInit)},
		{"UnknownStage", NewDefinition().Stage("hover").Initial("hover")},
		{"TerminalWithExit", NewDefinition().Stage(types.StageLanded, WithTerminal()).Stage(types.StageInit).
			Transition(types.StageLanded, types.StageInit).Initial(types.StageInit)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.def.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
