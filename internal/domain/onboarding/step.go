package onboarding

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Step is a 1-based index into the onboarding sequence.
type Step int

const (
	StepDateOfBirth Step = iota + 1
	StepGender
	StepGoal
	StepFocusTopic
	StepEnglishLevel
	StepCountry
	StepLanguage
	StepBudget
	StepProfilePicture
	StepProfileConfirm
)

const (
	FirstStep  = StepDateOfBirth
	LastStep   = StepProfileConfirm
	TotalSteps = int(LastStep)
)

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

func (s Step) String() string {
	return strconv.Itoa(int(s))
}

// ParseStep accepts 1..10; anything else is rejected.
func ParseStep(v int) (Step, error) {
	s := Step(v)
	if !s.Valid() {
		return 0, fmt.Errorf("step must be between %d and %d, got %d", FirstStep, LastStep, v)
	}
	return s, nil
}

// StepSet is the set of completed steps stored as a bitmask.
type StepSet uint16

func NewStepSet(steps ...Step) StepSet {
	var set StepSet
	for _, s := range steps {
		set = set.Add(s)
	}
	return set
}

func (set StepSet) Add(s Step) StepSet {
	if !s.Valid() {
		return set
	}
	return set | 1<<uint(s)
}

func (set StepSet) Has(s Step) bool {
	if !s.Valid() {
		return false
	}
	return set&(1<<uint(s)) != 0
}

func (set StepSet) Len() int {
	return bits.OnesCount16(uint16(set))
}

// Steps returns members in ascending order.
func (set StepSet) Steps() []Step {
	out := make([]Step, 0, set.Len())
	for s := FirstStep; s <= LastStep; s++ {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set StepSet) Int64s() []int64 {
	steps := set.Steps()
	out := make([]int64, 0, len(steps))
	for _, s := range steps {
		out = append(out, int64(s))
	}
	return out
}

// StepSetFromInt64s drops values outside 1..10.
func StepSetFromInt64s(values []int64) StepSet {
	var set StepSet
	for _, v := range values {
		set = set.Add(Step(v))
	}
	return set
}
