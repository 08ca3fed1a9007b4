package purge

import (
	"testing"
	"time"
)

func TestNewSweeper_ComputesRetentionWindows(t *testing.T) {
	s := NewSweeper(nil, 30, 90)

	if s.completedRetention != 30*24*time.Hour {
		t.Fatalf("completedRetention = %v, want %v", s.completedRetention, 30*24*time.Hour)
	}
	if s.failedRetention != 90*24*time.Hour {
		t.Fatalf("failedRetention = %v, want %v", s.failedRetention, 90*24*time.Hour)
	}
}

func TestNewSweeper_ZeroDaysMeansZeroRetention(t *testing.T) {
	s := NewSweeper(nil, 0, 0)

	if s.completedRetention != 0 || s.failedRetention != 0 {
		t.Fatalf("expected zero retention windows, got completed=%v failed=%v", s.completedRetention, s.failedRetention)
	}
}
