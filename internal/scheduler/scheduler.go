// Package scheduler adapts a pluggable memory model to the rating flow: it
// owns the "new card" nil-state convention and captures the pre-review
// snapshot the undo engine needs.
package scheduler

import (
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// Model computes the next scheduling state from a prior state (nil for a
// never-reviewed direction), a rating and the current time. Implementations
// must be pure given now, and for a fixed prior and now must order due times
// Again <= Hard <= Good <= Easy.
type Model func(prior *domain.SchedulingState, rating domain.Rating, now time.Time) domain.SchedulingState

// Snapshot captures everything needed to roll a review back.
type Snapshot struct {
	PriorPhase domain.Phase
	// Prior is a deep copy of the state before the review, nil when the
	// direction was new.
	Prior *domain.SchedulingState
}

// Adapter wraps a memory model behind the engine's calling contract.
type Adapter struct {
	model Model
}

// New returns an adapter around the given memory model.
func New(model Model) *Adapter {
	return &Adapter{model: model}
}

// ComputeNewState applies the rating and returns the next state together
// with the pre-review snapshot.
func (a *Adapter) ComputeNewState(prior *domain.SchedulingState, rating domain.Rating, now time.Time) (domain.SchedulingState, Snapshot) {
	snap := Snapshot{
		PriorPhase: domain.PhaseNew,
		Prior:      prior.Clone(),
	}
	if prior != nil {
		snap.PriorPhase = prior.Phase
	}
	return a.model(prior, rating, now), snap
}
