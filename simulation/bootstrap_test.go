package simulation

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/threes-sim/engine/cluster"
)

// TestBootstrapAttemptsConstant tests that a constant attempt series
// reproduces itself with zero spread
func TestBootstrapAttemptsConstant(t *testing.T) {
	volume, err := BootstrapAttempts([]int{5, 5, 5, 5, 5}, 1000, rand.NewSource(1))
	if err != nil {
		t.Fatalf("BootstrapAttempts returned error: %v", err)
	}
	if volume.Mean != 5 {
		t.Errorf("Expected mean 5 for constant series, got %v", volume.Mean)
	}
	if volume.Std != 0 {
		t.Errorf("Expected std 0 for constant series, got %v", volume.Std)
	}
}

// TestBootstrapAttempts tests the estimate against the analytic standard
// error of the mean
func TestBootstrapAttempts(t *testing.T) {
	counts := []int{2, 4, 6, 8, 10}
	volume, err := BootstrapAttempts(counts, 5000, rand.NewSource(7))
	if err != nil {
		t.Fatalf("BootstrapAttempts returned error: %v", err)
	}

	// Sample mean 6; bootstrap standard error sqrt(8/5) ~= 1.26
	if math.Abs(volume.Mean-6) > 0.5 {
		t.Errorf("Expected mean near 6, got %v", volume.Mean)
	}
	if volume.Std < 0.8 || volume.Std > 1.8 {
		t.Errorf("Expected std near 1.26, got %v", volume.Std)
	}
}

// TestBootstrapAttemptsDeterministic tests that a fixed source reproduces
// the estimate exactly
func TestBootstrapAttemptsDeterministic(t *testing.T) {
	counts := []int{3, 7, 2, 9, 4, 6}
	first, err := BootstrapAttempts(counts, 2000, rand.NewSource(42))
	if err != nil {
		t.Fatalf("First call returned error: %v", err)
	}
	second, err := BootstrapAttempts(counts, 2000, rand.NewSource(42))
	if err != nil {
		t.Fatalf("Second call returned error: %v", err)
	}
	if first != second {
		t.Errorf("Same source gave different estimates: %+v vs %+v", first, second)
	}
}

// TestBootstrapAttemptsErrors tests the input validation paths
func TestBootstrapAttemptsErrors(t *testing.T) {
	tests := []struct {
		name       string
		counts     []int
		samples    int
		wantNoData bool
	}{
		{"empty counts", nil, 1000, true},
		{"zero samples", []int{1, 2, 3}, 0, false},
		{"negative samples", []int{1, 2, 3}, -5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BootstrapAttempts(tt.counts, tt.samples, rand.NewSource(1))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := errors.Is(err, cluster.ErrInsufficientData); got != tt.wantNoData {
				t.Errorf("errors.Is(err, ErrInsufficientData) = %v, want %v", got, tt.wantNoData)
			}
		})
	}
}

// TestBootstrapAttemptsSingleGame tests that one observed game still yields
// an estimate, with the whole series collapsing to that game
func TestBootstrapAttemptsSingleGame(t *testing.T) {
	volume, err := BootstrapAttempts([]int{8}, 500, rand.NewSource(3))
	if err != nil {
		t.Fatalf("BootstrapAttempts returned error: %v", err)
	}
	if volume.Mean != 8 {
		t.Errorf("Expected mean 8, got %v", volume.Mean)
	}
	if volume.Std != 0 {
		t.Errorf("Expected std 0 with a single game, got %v", volume.Std)
	}
}
