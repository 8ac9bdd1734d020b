package fsm

import (
	"fmt"
	"sort"

	"show-controller/internal/types"
)

type stageInfo struct {
	terminal bool
}

type StageOption func(*stageInfo)

// WithTerminal marks a stage that is only left by exiting the mode.
func WithTerminal() StageOption {
	return func(s *stageInfo) { s.terminal = true }
}

// Definition is a declarative table of the stages and the transitions
// allowed between them.
type Definition struct {
	stages      map[types.Stage]stageInfo
	transitions map[types.Stage]map[types.Stage]struct{}
	fromAny     map[types.Stage]struct{}
	initial     types.Stage
}

func NewDefinition() *Definition {
	return &Definition{
		stages:      make(map[types.Stage]stageInfo),
		transitions: make(map[types.Stage]map[types.Stage]struct{}),
		fromAny:     make(map[types.Stage]struct{}),
	}
}

func (d *Definition) Stage(s types.Stage, opts ...StageOption) *Definition {
	info := stageInfo{}
	for _, opt := range opts {
		opt(&info)
	}
	d.stages[s] = info
	return d
}

func (d *Definition) Transition(from, to types.Stage) *Definition {
	if d.transitions[from] == nil {
		d.transitions[from] = make(map[types.Stage]struct{})
	}
	d.transitions[from][to] = struct{}{}
	return d
}

// FromAny allows entering to from every declared stage.
func (d *Definition) FromAny(to types.Stage) *Definition {
	d.fromAny[to] = struct{}{}
	return d
}

func (d *Definition) Initial(s types.Stage) *Definition {
	d.initial = s
	return d
}

func (d *Definition) InitialStage() types.Stage {
	return d.initial
}

// Validate checks that every declared stage is known, every referenced stage
// is declared and terminal stages have no outgoing transitions of their own.
func (d *Definition) Validate() error {
	for s := range d.stages {
		if !s.Valid() {
			return fmt.Errorf("unknown stage %q", s)
		}
	}
	if _, ok := d.stages[d.initial]; !ok {
		return fmt.Errorf("initial stage %q is not declared", d.initial)
	}
	for from, tos := range d.transitions {
		info, ok := d.stages[from]
		if !ok {
			return fmt.Errorf("transition from undeclared stage %q", from)
		}
		if info.terminal && len(tos) > 0 {
			return fmt.Errorf("terminal stage %q has outgoing transitions", from)
		}
		for to := range tos {
			if _, ok := d.stages[to]; !ok {
				return fmt.Errorf("transition %q -> %q targets undeclared stage", from, to)
			}
		}
	}
	for to := range d.fromAny {
		if _, ok := d.stages[to]; !ok {
			return fmt.Errorf("any-stage transition targets undeclared stage %q", to)
		}
	}
	return nil
}

// Allows reports whether from -> to is a legal transition.
func (d *Definition) Allows(from, to types.Stage) bool {
	if _, ok := d.stages[to]; !ok {
		return false
	}
	if _, ok := d.fromAny[to]; ok {
		return true
	}
	_, ok := d.transitions[from][to]
	return ok
}

func (d *Definition) IsTerminal(s types.Stage) bool {
	return d.stages[s].terminal
}

// Successors returns the stages reachable from s in one step, excluding
// any-stage transitions, sorted by name.
func (d *Definition) Successors(s types.Stage) []types.Stage {
	out := make([]types.Stage, 0, len(d.transitions[s]))
	for to := range d.transitions[s] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewShowDefinition creates the stage table of the drone show mode.
func NewShowDefinition() *Definition {
	return NewDefinition().
		Stage(types.StageOff).
		Stage(types.StageInit).
		Stage(types.StageWaitForStartTime).
		Stage(types.StageTakeoff).
		Stage(types.StagePerforming).
		Stage(types.StageLanding).
		Stage(types.StageRTL).
		Stage(types.StageLoiter).
		Stage(types.StageLanded, WithTerminal()).
		Stage(types.StageError, WithTerminal()).

		// Mode entry and exit
		Transition(types.StageOff, types.StageInit).
		FromAny(types.StageOff).
		Transition(types.StageInit, types.StageWaitForStartTime).

		// Waiting on the ground: scheduled start, test takeoff, cancel, deadline
		Transition(types.StageWaitForStartTime, types.StageTakeoff).
		Transition(types.StageWaitForStartTime, types.StageLanded).
		Transition(types.StageWaitForStartTime, types.StageRTL).
		Transition(types.StageWaitForStartTime, types.StageError).
		Transition(types.StageTakeoff, types.StagePerforming).
		Transition(types.StageTakeoff, types.StageLoiter).
		Transition(types.StageTakeoff, types.StageRTL).
		Transition(types.StageTakeoff, types.StageError).
		Transition(types.StagePerforming, types.StageLanding).
		Transition(types.StagePerforming, types.StageRTL).
		Transition(types.StageLanding, types.StageLanded).
		Transition(types.StageRTL, types.StageLanded).
		Transition(types.StageRTL, types.StageLanding). // RTL refused by the vehicle

		Transition(types.StageLoiter, types.StageLanding).
		Transition(types.StageLoiter, types.StageLanded).
		Initial(types.StageOff)
}
