package onboarding

import "testing"

func TestStepSet(t *testing.T) {
	set := NewStepSet(StepGoal, StepDateOfBirth, StepGoal, Step(0), Step(11))

	if set.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", set.Len())
	}
	if !set.Has(StepDateOfBirth) || !set.Has(StepGoal) || set.Has(StepGender) {
		t.Fatalf("unexpected membership: %v", set.Steps())
	}

	set = set.Add(StepProfileConfirm)
	got := set.Steps()
	want := []Step{StepDateOfBirth, StepGoal, StepProfileConfirm}
	if len(got) != len(want) {
		t.Fatalf("unexpected steps: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("steps[%d]=%d want %d", i, got[i], want[i])
		}
	}

	roundTrip := StepSetFromInt64s(set.Int64s())
	if roundTrip != set {
		t.Fatalf("int64 round trip changed the set: %v", roundTrip.Steps())
	}
}

func TestParseStep(t *testing.T) {
	if _, err := ParseStep(0); err == nil {
		t.Fatalf("expected error for step 0")
	}
	if _, err := ParseStep(11); err == nil {
		t.Fatalf("expected error for step 11")
	}
	s, err := ParseStep(6)
	if err != nil || s != StepCountry {
		t.Fatalf("unexpected parse result %d, %v", s, err)
	}
}

func TestRegistry_CountryFallback(t *testing.T) {
	spec, ok := Registry(FieldCountry)
	if !ok {
		t.Fatalf("country must be registered")
	}
	want := []string{"United States", "United Kingdom", "Canada", "Australia", "India", "Other"}
	if len(spec.Fallback) != len(want) {
		t.Fatalf("unexpected fallback: %v", spec.Fallback)
	}
	for i := range want {
		if spec.Fallback[i] != want[i] {
			t.Fatalf("fallback[%d]=%q want %q", i, spec.Fallback[i], want[i])
		}
	}
	if spec.Reference != ReferenceCountries {
		t.Fatalf("unexpected reference %q", spec.Reference)
	}

	spec.Fallback[0] = "mutated"
	again, _ := Registry(FieldCountry)
	if again.Fallback[0] != "United States" {
		t.Fatalf("registry fallback must not be shared with callers")
	}

	if _, ok := Registry(FieldDateOfBirth); ok {
		t.Fatalf("date of birth is not a dropdown")
	}
}
