package onboard

import (
	"github.com/danmuck/onboardctl/internal/batch"
	"github.com/danmuck/onboardctl/internal/strategy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Flow string

const (
	FlowInitReserves        Flow = "init_reserves"
	FlowInitCollateral      Flow = "init_nfts"
	FlowConfigureReserves   Flow = "configure_reserves"
	FlowConfigureCollateral Flow = "configure_nfts"
)

// State is the run level state machine position.
type State string

const (
	StateStart            State = "START"
	StateFiltered         State = "FILTERED"
	StateStrategyResolved State = "STRATEGY_RESOLVED"
	StatePlanned          State = "PLANNED"
	StateElevated         State = "ELEVATED"
	StateSubmitting       State = "SUBMITTING"
	StateRestored         State = "RESTORED"
	StateDone             State = "DONE"
	StateAborted          State = "ABORTED"
)

// RunReport summarizes one orchestration call.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Flow       Flow              `json:"flow"`
	State      State             `json:"state"`
	History    []State           `json:"history"`
	Resolved   []string          `json:"resolved"`
	Skipped    []string          `json:"skipped,omitempty"`
	Excluded   []string          `json:"excluded,omitempty"`
	Strategies []strategy.Handle `json:"strategies,omitempty"`
	Elevated   bool              `json:"elevated"`
	Batch      batch.Report      `json:"batch"`
}

// run tracks one flow through its states.
type run struct {
	report RunReport
	logger zerolog.Logger
}

func newRun(flow Flow, logger zerolog.Logger) *run {
	id := uuid.NewString()
	r := &run{
		report: RunReport{RunID: id, Flow: flow},
		logger: logger.With().Str("run", id).Str("flow", string(flow)).Logger(),
	}
	r.enter(StateStart)
	return r
}

func (r *run) enter(state State) {
	r.report.State = state
	r.report.History = append(r.report.History, state)
	r.logger.Debug().Str("state", string(state)).Msg("run state")
}

// finish records DONE or ABORTED and returns err unchanged.
func (r *run) finish(err error) (RunReport, error) {
	if err != nil {
		r.enter(StateAborted)
		r.logger.Error().Err(err).Msg("run aborted; confirmed chunks stay committed")
		return r.report, err
	}
	r.enter(StateDone)
	return r.report, nil
}
