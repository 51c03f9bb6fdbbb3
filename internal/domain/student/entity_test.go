package student

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccumulate_WeightsPointsByCreditHours(t *testing.T) {
	s := Accumulate(Standing{}, Contribution{Points: 4, CreditHours: 3, Level: 1, Passed: true})
	s = Accumulate(s, Contribution{Points: 2, CreditHours: 2, Level: 2, Passed: true})

	assert.True(t, decimal.NewFromInt(16).Equal(s.Points))
	assert.Equal(t, 5, s.AttemptedHours)
	assert.Equal(t, 5, s.EarnedHours)
	assert.Equal(t, 2, s.Level)
}

func TestAccumulate_FailedCountsAsAttemptedOnly(t *testing.T) {
	s := Accumulate(Standing{Level: 1}, Contribution{Points: 0, CreditHours: 3, Level: 3, Passed: false})

	assert.Equal(t, 3, s.AttemptedHours)
	assert.Equal(t, 0, s.EarnedHours)
	assert.Equal(t, 1, s.Level)
}

func TestAccumulate_DoesNotMutateInput(t *testing.T) {
	in := Standing{AttemptedHours: 1}
	_ = Accumulate(in, Contribution{Points: 1, CreditHours: 2, Passed: true})

	assert.Equal(t, 1, in.AttemptedHours)
}

func TestFinalize(t *testing.T) {
	s := Accumulate(Standing{}, Contribution{Points: 4, CreditHours: 3, Passed: true})
	s = Accumulate(s, Contribution{Points: 3, CreditHours: 3, Passed: true})
	s = Accumulate(s, Contribution{Points: 2, CreditHours: 3, Passed: true})

	got := Finalize(s)
	assert.Equal(t, "3", got.GPA.String())

	// Idempotent.
	assert.True(t, got.GPA.Equal(Finalize(got).GPA))
}

func TestFinalize_RoundsToTwoPlaces(t *testing.T) {
	s := Accumulate(Standing{}, Contribution{Points: 4, CreditHours: 1, Passed: true})
	s = Accumulate(s, Contribution{Points: 3, CreditHours: 2, Passed: true})

	assert.Equal(t, "3.33", Finalize(s).GPA.String())
}

func TestFinalize_NoAttemptedHours(t *testing.T) {
	assert.True(t, Finalize(Standing{}).GPA.IsZero())
}

func TestStandingUpdate_AppliesOnTopOfStored(t *testing.T) {
	// Two runs for the same student, each with its own delta.
	first := StandingUpdate{Delta: Accumulate(Standing{}, Contribution{Points: 2, CreditHours: 2, Level: 1, Passed: true})}
	second := StandingUpdate{Delta: Accumulate(Standing{}, Contribution{Points: 4, CreditHours: 3, Level: 2, Passed: true})}

	stored := first.Apply(Standing{})
	stored = second.Apply(stored)

	assert.Equal(t, 5, stored.AttemptedHours)
	assert.Equal(t, 5, stored.EarnedHours)
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, "3.2", stored.GPA.String())
}

func TestMerge_KeepsHigherLevel(t *testing.T) {
	got := Merge(Standing{Level: 3, AttemptedHours: 1}, Standing{Level: 2, AttemptedHours: 2})

	assert.Equal(t, 3, got.Level)
	assert.Equal(t, 3, got.AttemptedHours)
}
