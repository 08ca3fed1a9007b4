package jobs

import "testing"

func TestPriority_IsValid(t *testing.T) {
	valid := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
	for _, p := range valid {
		if !p.IsValid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}

	if Priority("urgent").IsValid() {
		t.Fatalf("expected unknown priority to be invalid")
	}
}

func TestPriority_Slots(t *testing.T) {
	cases := map[Priority]int{
		PriorityCritical: 4,
		PriorityHigh:     3,
		PriorityNormal:   2,
		PriorityLow:      1,
		Priority("bogus"): 1,
	}

	for p, want := range cases {
		if got := p.Slots(); got != want {
			t.Fatalf("%q.Slots() = %d, want %d", p, got, want)
		}
	}
}
