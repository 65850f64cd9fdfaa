package fsrs

import (
	"math"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// Params holds the parameters for the FSRS memory model. The scheduling
// transition is pure: given the same prior state, rating and clock reading it
// always produces the same next state.
type Params struct {
	A                float64 // scales the overall memory increase
	B                float64 // difficulty exponent
	C                float64 // stability exponent
	D                float64 // retention effect scaler
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)

	HardFactor float64 // interval multiplier for Hard relative to Good
	EasyBonus  float64 // interval multiplier for Easy relative to Good

	LearningStepAgain time.Duration
	LearningStepHard  time.Duration
	LearningStepGood  time.Duration
	RelearningStep    time.Duration

	MaximumIntervalDays int
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		A:                   0.2,
		B:                   0.5,
		C:                   0.1,
		D:                   4.0,
		DesiredRetention:    0.9,
		HardFactor:          0.8,
		EasyBonus:           1.3,
		LearningStepAgain:   1 * time.Minute,
		LearningStepHard:    5 * time.Minute,
		LearningStepGood:    10 * time.Minute,
		RelearningStep:      10 * time.Minute,
		MaximumIntervalDays: 36500,
	}
}

// Next computes the scheduling state after rating a card direction at the
// given time. A nil prior is the never-reviewed case and initializes a fresh
// state before applying the rating.
//
// For any fixed prior and now, the resulting due times are ordered
// Again <= Hard <= Good <= Easy.
func (p *Params) Next(prior *domain.SchedulingState, rating domain.Rating, now time.Time) domain.SchedulingState {
	if prior == nil {
		return p.nextFromNew(rating, now)
	}

	next := *prior
	next.Reps = prior.Reps + 1
	next.ElapsedDays = elapsedDays(prior, now)
	lr := now
	next.LastReview = &lr

	switch prior.Phase {
	case domain.PhaseLearning, domain.PhaseRelearning:
		p.applyLearning(&next, rating, now)
	default:
		p.applyReview(&next, rating, now)
	}
	return next
}

// nextFromNew initializes the state for the first ever review of a direction.
// Easy graduates straight to the review phase; everything else enters the
// learning steps.
func (p *Params) nextFromNew(rating domain.Rating, now time.Time) domain.SchedulingState {
	lr := now
	next := domain.SchedulingState{
		Stability:  initialStability(rating),
		Difficulty: initialDifficulty(rating),
		Reps:       1,
		LastReview: &lr,
	}

	switch rating {
	case domain.Again:
		next.Phase = domain.PhaseLearning
		next.Due = now.Add(p.LearningStepAgain)
	case domain.Hard:
		next.Phase = domain.PhaseLearning
		next.Due = now.Add(p.LearningStepHard)
	case domain.Good:
		next.Phase = domain.PhaseLearning
		next.Due = now.Add(p.LearningStepGood)
	default: // Easy
		next.Phase = domain.PhaseReview
		days := p.clampDays(next.Stability * p.EasyBonus)
		next.ScheduledDays = days
		next.Due = dueAfterDays(now, days)
	}
	return next
}

// applyLearning advances a card already in a learning or relearning step.
// Good and Easy graduate to the review phase.
func (p *Params) applyLearning(next *domain.SchedulingState, rating domain.Rating, now time.Time) {
	switch rating {
	case domain.Again:
		next.Lapses++
		next.Difficulty = clampDifficulty(next.Difficulty + 0.5)
		next.ScheduledDays = 0
		next.Due = now.Add(p.LearningStepAgain)
	case domain.Hard:
		next.Difficulty = clampDifficulty(next.Difficulty + 0.1)
		next.ScheduledDays = 0
		next.Due = now.Add(p.LearningStepHard)
	case domain.Good:
		next.Phase = domain.PhaseReview
		next.Stability = p.calculateNewStability(next.Stability, next.Difficulty)
		days := p.clampDays(next.Stability)
		next.ScheduledDays = days
		next.Due = dueAfterDays(now, days)
	default: // Easy
		next.Phase = domain.PhaseReview
		next.Stability = p.calculateNewStability(next.Stability, next.Difficulty)
		days := p.clampDays(next.Stability * p.EasyBonus)
		next.ScheduledDays = days
		next.Due = dueAfterDays(now, days)
	}
}

// applyReview handles a card in the review phase. Again is a lapse and drops
// the card into a short relearning step.
func (p *Params) applyReview(next *domain.SchedulingState, rating domain.Rating, now time.Time) {
	if rating == domain.Again {
		next.Phase = domain.PhaseRelearning
		next.Lapses++
		next.Difficulty = clampDifficulty(next.Difficulty + 0.5)
		next.Stability = math.Max(1, next.Stability*0.3)
		next.ScheduledDays = 0
		next.Due = now.Add(p.RelearningStep)
		return
	}

	next.Phase = domain.PhaseReview
	switch rating {
	case domain.Hard:
		next.Difficulty = clampDifficulty(next.Difficulty + 0.1)
	case domain.Easy:
		next.Difficulty = clampDifficulty(next.Difficulty - 0.1)
	}

	next.Stability = p.calculateNewStability(next.Stability, next.Difficulty)
	var days int
	switch rating {
	case domain.Hard:
		days = p.clampDays(next.Stability * p.HardFactor)
	case domain.Good:
		days = p.clampDays(next.Stability)
	default: // Easy
		days = p.clampDays(next.Stability * p.EasyBonus)
	}
	next.ScheduledDays = days
	next.Due = dueAfterDays(now, days)
}

// calculateNewStability applies the core FSRS formula for a successful review.
func (p *Params) calculateNewStability(stability, difficulty float64) float64 {
	// Formula: S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1 // Ensure stability is at least 1 to avoid issues with pow
	}
	if difficulty < 1 {
		difficulty = 1 // Ensure difficulty is at least 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}

// clampDays converts a stability-scaled interval to whole days, at least one
// and no more than the configured maximum.
func (p *Params) clampDays(interval float64) int {
	days := int(math.Round(interval))
	if days < 1 {
		days = 1
	}
	if days > p.MaximumIntervalDays {
		days = p.MaximumIntervalDays
	}
	return days
}

func dueAfterDays(now time.Time, days int) time.Time {
	return now.Add(time.Duration(days) * 24 * time.Hour)
}

func elapsedDays(prior *domain.SchedulingState, now time.Time) int {
	if prior.LastReview == nil {
		return 0
	}
	d := int(now.Sub(*prior.LastReview).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func initialStability(rating domain.Rating) float64 {
	switch rating {
	case domain.Again:
		return 0.4
	case domain.Hard:
		return 1.2
	case domain.Good:
		return 2.5
	default:
		return 4.0
	}
}

func initialDifficulty(rating domain.Rating) float64 {
	return clampDifficulty(5.0 + float64(int(domain.Good)-int(rating)))
}

func clampDifficulty(d float64) float64 {
	if d < 1 {
		return 1
	}
	if d > 10 {
		return 10
	}
	return d
}
