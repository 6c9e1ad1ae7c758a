package arbitrage

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRebalancer(settle *fakeSettler) (*Rebalancer, *time.Time) {
	r := NewRebalancer(RebalancerConfig{
		TargetRatio:     0.5,
		Tolerance:       0.15,
		Cooldown:        time.Minute,
		MaxConsecutive:  3,
		EscalationScale: 3,
		Logger:          zap.NewNop(),
	}, settle)

	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		usdc       float64
		pairs      float64
		wantNil    bool
		wantAction RebalanceAction
		wantAmount float64
	}{
		{name: "balanced", usdc: 50, pairs: 50, wantNil: true},
		{name: "inside-band-high", usdc: 60, pairs: 40, wantNil: true},
		{name: "inside-band-low", usdc: 40, pairs: 60, wantNil: true},
		{name: "too-much-usdc-splits", usdc: 80, pairs: 20, wantAction: ActionSplit, wantAmount: 30},
		{name: "too-many-tokens-merges", usdc: 20, pairs: 80, wantAction: ActionMerge, wantAmount: 30},
		{name: "empty-wallet", usdc: 0, pairs: 0, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRebalancer(newFakeSettler())
			decision := r.Evaluate(tt.usdc, tt.pairs)
			if tt.wantNil {
				if decision != nil {
					t.Fatalf("Evaluate() = %+v, want nil", decision)
				}
				return
			}
			if decision == nil {
				t.Fatal("Evaluate() = nil, want a decision")
			}
			if decision.Action != tt.wantAction {
				t.Errorf("Action = %s, want %s", decision.Action, tt.wantAction)
			}
			if math.Abs(decision.Amount-tt.wantAmount) > 1e-9 {
				t.Errorf("Amount = %g, want %g", decision.Amount, tt.wantAmount)
			}
		})
	}
}

func TestRebalancePriority(t *testing.T) {
	tests := []struct {
		name      string
		deviation float64
		want      int
	}{
		{"at-band-edge", 0.15, 50},
		{"double-tolerance-saturates", 0.30, 100},
		{"negative-deviation", -0.21, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rebalancePriority(tt.deviation, 0.15); got != tt.want {
				t.Errorf("rebalancePriority(%g) = %d, want %d", tt.deviation, got, tt.want)
			}
		})
	}
}

func TestMaybe_CooldownBlocksBackToBackRuns(t *testing.T) {
	settle := newFakeSettler()
	r, clock := newTestRebalancer(settle)
	ctx := context.Background()

	decision, err := r.Maybe(ctx, "0xcond1", false, 80, 20)
	if err != nil || decision == nil {
		t.Fatalf("first Maybe() = %+v, %v", decision, err)
	}

	// Still imbalanced 10s later, but inside the cooldown.
	*clock = clock.Add(10 * time.Second)
	decision, err = r.Maybe(ctx, "0xcond1", false, 80, 20)
	if err != nil || decision != nil {
		t.Fatalf("cooldown Maybe() = %+v, %v, want nil, nil", decision, err)
	}
	if got := len(settle.callLog()); got != 1 {
		t.Errorf("settlement calls = %d, want 1", got)
	}

	*clock = clock.Add(time.Minute)
	decision, _ = r.Maybe(ctx, "0xcond1", false, 80, 20)
	if decision == nil {
		t.Error("Maybe() after cooldown did not run")
	}
}

func TestMaybe_EscalatesCooldownAfterConsecutiveRuns(t *testing.T) {
	settle := newFakeSettler()
	r, clock := newTestRebalancer(settle)
	ctx := context.Background()

	// Three rebalances in a row, each waiting out the base cooldown.
	for i := 0; i < 3; i++ {
		decision, err := r.Maybe(ctx, "0xcond1", false, 80, 20)
		if err != nil || decision == nil {
			t.Fatalf("run %d: Maybe() = %+v, %v", i, decision, err)
		}
		*clock = clock.Add(time.Minute)
	}

	// The fourth needs the escalated 3x cooldown.
	decision, _ := r.Maybe(ctx, "0xcond1", false, 80, 20)
	if decision != nil {
		t.Fatal("Maybe() ran inside the escalated cooldown")
	}

	*clock = clock.Add(2 * time.Minute)
	decision, _ = r.Maybe(ctx, "0xcond1", false, 80, 20)
	if decision == nil {
		t.Error("Maybe() did not run after the escalated cooldown elapsed")
	}
}

func TestMaybe_InBandResetsConsecutiveRun(t *testing.T) {
	settle := newFakeSettler()
	r, clock := newTestRebalancer(settle)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if decision, _ := r.Maybe(ctx, "0xcond1", false, 80, 20); decision == nil {
			t.Fatalf("run %d did not execute", i)
		}
		*clock = clock.Add(time.Minute)
	}

	// A balanced observation clears the streak and the base cooldown applies
	// again.
	if decision, _ := r.Maybe(ctx, "0xcond1", false, 50, 50); decision != nil {
		t.Fatal("balanced wallet triggered a rebalance")
	}
	*clock = clock.Add(time.Minute)
	if decision, _ := r.Maybe(ctx, "0xcond1", false, 80, 20); decision == nil {
		t.Error("Maybe() still escalated after an in-band reset")
	}
}

func TestPausesQuotes(t *testing.T) {
	r, _ := newTestRebalancer(newFakeSettler())

	if r.PausesQuotes(nil, 80) {
		t.Error("nil decision paused quotes")
	}
	if r.PausesQuotes(&RebalanceDecision{Priority: 50}, 80) {
		t.Error("low-priority decision paused quotes")
	}
	if !r.PausesQuotes(&RebalanceDecision{Priority: 100}, 80) {
		t.Error("saturated-priority decision did not pause quotes")
	}
}
