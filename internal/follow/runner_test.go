package follow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

func tradeAt(txHash string, ts int64, side string, usdc float64) types.ActivityEvent {
	return types.ActivityEvent{
		Type:            types.ActivityTrade,
		Side:            side,
		UsdcSize:        usdc,
		Size:            usdc / 0.5,
		Price:           0.5,
		Asset:           "token-yes",
		ConditionID:     "0xcond",
		Title:           "Will it rain tomorrow",
		Slug:            "will-it-rain-tomorrow",
		TransactionHash: txHash,
		Timestamp:       ts,
	}
}

type fakeFollowSource struct {
	rows []types.ActivityEvent // newest first
	err  error
}

func (f *fakeFollowSource) GetAllActivity(_ context.Context, _ string, _ int, _ string) ([]types.ActivityEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func newTestRunner(cfg RunnerConfig, source activitySource) *Runner {
	if cfg.TargetAddress == "" {
		cfg.TargetAddress = "0xtarget"
	}
	return NewRunner(cfg, source, zap.NewNop())
}

func TestSuggestionID_Deterministic(t *testing.T) {
	a := SuggestionID("runner-1", "0xabc")
	b := SuggestionID("runner-1", "0xabc")
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
	if SuggestionID("runner-2", "0xabc") == a {
		t.Error("different runners produced the same id")
	}
}

func TestBuildSuggestion_FilterChain(t *testing.T) {
	now := time.Now().Unix()
	tests := []struct {
		name       string
		cfg        RunnerConfig
		event      types.ActivityEvent
		wantStatus string
		wantReason string
		wantUSDC   float64
	}{
		{
			name:       "accepted-and-scaled",
			cfg:        RunnerConfig{Ratio: 0.1},
			event:      tradeAt("0x1", now, types.SideBuy, 800),
			wantStatus: SuggestionPending,
			wantUSDC:   80,
		},
		{
			name:       "scaled-capped-per-order",
			cfg:        RunnerConfig{Ratio: 0.5, MaxUsdcPerOrder: 100},
			event:      tradeAt("0x2", now, types.SideBuy, 800),
			wantStatus: SuggestionPending,
			wantUSDC:   100,
		},
		{
			name:       "side-filtered",
			cfg:        RunnerConfig{Sides: []string{types.SideBuy}},
			event:      tradeAt("0x3", now, types.SideSell, 800),
			wantStatus: SuggestionDropped,
			wantReason: DropTypeFiltered,
		},
		{
			name:       "keyword-excluded",
			cfg:        RunnerConfig{ExcludeKeywords: []string{"rain"}},
			event:      tradeAt("0x4", now, types.SideBuy, 800),
			wantStatus: SuggestionDropped,
			wantReason: DropKeywordExcluded,
		},
		{
			name:       "keyword-missing",
			cfg:        RunnerConfig{IncludeKeywords: []string{"election"}},
			event:      tradeAt("0x5", now, types.SideBuy, 800),
			wantStatus: SuggestionDropped,
			wantReason: DropKeywordMissing,
		},
		{
			name:       "below-minimum",
			cfg:        RunnerConfig{Ratio: 0.1, MinUsdcPerOrder: 100},
			event:      tradeAt("0x6", now, types.SideBuy, 800),
			wantStatus: SuggestionDropped,
			wantReason: DropBelowMinimum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(tt.cfg, &fakeFollowSource{})
			s := r.buildSuggestion(&tt.event)
			if s.Status != tt.wantStatus {
				t.Fatalf("status = %q, want %q", s.Status, tt.wantStatus)
			}
			if s.DropReason != tt.wantReason {
				t.Errorf("drop reason = %q, want %q", s.DropReason, tt.wantReason)
			}
			if tt.wantUSDC > 0 && s.SuggestedUSDC != tt.wantUSDC {
				t.Errorf("suggested usdc = %v, want %v", s.SuggestedUSDC, tt.wantUSDC)
			}
			if s.ID != SuggestionID(r.ID(), tt.event.Fingerprint()) {
				t.Error("suggestion id not derived from runner id and fingerprint")
			}
		})
	}
}

func TestQuotaExceededNotAddedToRunningSum(t *testing.T) {
	r := newTestRunner(RunnerConfig{Ratio: 1, MaxUsdcPerOrder: 100, MaxUsdcPerDay: 100}, &fakeFollowSource{})
	now := time.Now().Unix()

	first := tradeAt("0xa", now, types.SideBuy, 92)
	if s := r.buildSuggestion(&first); s.Status != SuggestionPending {
		t.Fatalf("first suggestion status = %q, want pending", s.Status)
	}
	if used := r.quotaUsed(); used != 92 {
		t.Fatalf("quota used = %v, want 92", used)
	}

	over := tradeAt("0xb", now, types.SideBuy, 20)
	s := r.buildSuggestion(&over)
	if s.Status != SuggestionDropped || s.DropReason != DropQuotaExceeded {
		t.Fatalf("over-quota suggestion = %q/%q, want dropped/quotaExceeded", s.Status, s.DropReason)
	}
	if used := r.quotaUsed(); used != 92 {
		t.Fatalf("quota used after drop = %v, want 92 (drop must not count)", used)
	}

	// The remaining headroom is still spendable.
	fits := tradeAt("0xc", now, types.SideBuy, 8)
	if s := r.buildSuggestion(&fits); s.Status != SuggestionPending {
		t.Fatalf("fitting suggestion status = %q, want pending", s.Status)
	}
	if used := r.quotaUsed(); used != 100 {
		t.Fatalf("quota used = %v, want 100", used)
	}
}

func TestSuggestionRingDedupesByID(t *testing.T) {
	r := newTestRunner(RunnerConfig{Ratio: 1, MaxUsdcPerOrder: 100}, &fakeFollowSource{})
	event := tradeAt("0xdup", time.Now().Unix(), types.SideBuy, 50)

	a := r.buildSuggestion(&event)
	b := r.buildSuggestion(&event)
	if a.ID != b.ID {
		t.Fatalf("same event produced different ids: %s vs %s", a.ID, b.ID)
	}
}

func TestPoll_SkipsHistoryAndDedupesByHash(t *testing.T) {
	now := time.Now()
	source := &fakeFollowSource{rows: []types.ActivityEvent{
		tradeAt("0xnew2", now.Unix(), types.SideBuy, 600),
		tradeAt("0xnew1", now.Unix()-1, types.SideBuy, 700),
		tradeAt("0xold", now.Add(-time.Hour).Unix(), types.SideBuy, 800),
	}}
	r := newTestRunner(RunnerConfig{Ratio: 1, MaxUsdcPerOrder: 1000, MaxUsdcPerDay: 10000}, source)

	r.mu.Lock()
	r.startedAt = now.Add(-time.Minute)
	r.mu.Unlock()

	r.poll(context.Background())

	events := r.Events(0, 10)
	if len(events) != 2 {
		t.Fatalf("events after first poll = %d, want 2 (pre-start row ignored)", len(events))
	}
	if events[0].TransactionHash != "0xnew1" || events[1].TransactionHash != "0xnew2" {
		t.Errorf("events not in chronological order: %s, %s",
			events[0].TransactionHash, events[1].TransactionHash)
	}

	// Same rows again: everything is behind lastSeenTransactionHash.
	r.poll(context.Background())
	if got := len(r.Events(0, 10)); got != 2 {
		t.Fatalf("events after repeat poll = %d, want 2", got)
	}

	status := r.Status()
	if status.LastSeenTxHash != "0xnew2" {
		t.Errorf("last seen hash = %q, want 0xnew2", status.LastSeenTxHash)
	}
	if status.SuggestionsMade != 2 {
		t.Errorf("suggestions made = %d, want 2", status.SuggestionsMade)
	}
}

func TestPoll_EmitsAcceptedSuggestions(t *testing.T) {
	now := time.Now()
	source := &fakeFollowSource{rows: []types.ActivityEvent{
		tradeAt("0xsmall", now.Unix(), types.SideBuy, 3), // scales below minimum
		tradeAt("0xbig", now.Unix()-1, types.SideBuy, 500),
	}}
	r := newTestRunner(RunnerConfig{Ratio: 0.1, MinUsdcPerOrder: 1}, source)

	r.mu.Lock()
	r.startedAt = now.Add(-time.Minute)
	r.mu.Unlock()

	r.poll(context.Background())

	select {
	case s := <-r.Suggestions():
		if s.Event.TransactionHash != "0xbig" {
			t.Fatalf("emitted suggestion for %s, want 0xbig", s.Event.TransactionHash)
		}
		if s.SuggestedUSDC != 50 {
			t.Errorf("suggested usdc = %v, want 50", s.SuggestedUSDC)
		}
	default:
		t.Fatal("no suggestion emitted")
	}

	select {
	case s := <-r.Suggestions():
		t.Fatalf("unexpected second emission: %+v", s)
	default:
	}
}

func TestEventRingBounded(t *testing.T) {
	r := newTestRunner(RunnerConfig{RingSize: 5, Ratio: 1, MaxUsdcPerOrder: 1000, MaxUsdcPerDay: 1e9}, &fakeFollowSource{})
	now := time.Now().Unix()
	for i := 0; i < 12; i++ {
		event := tradeAt(fmt.Sprintf("0x%02d", i), now+int64(i), types.SideBuy, 600)
		r.handleEvent(&event)
	}
	if got := len(r.Events(0, 100)); got != 5 {
		t.Fatalf("event ring size = %d, want 5", got)
	}
	if got := len(r.SuggestionList()); got != 5 {
		t.Fatalf("suggestion ring size = %d, want 5", got)
	}
}

func TestEventsBeforeTimestamp(t *testing.T) {
	r := newTestRunner(RunnerConfig{}, &fakeFollowSource{})
	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		event := tradeAt(fmt.Sprintf("0xt%d", i), base+int64(i), types.SideBuy, 600)
		r.handleEvent(&event)
	}
	got := r.Events(base+3, 10)
	if len(got) != 3 {
		t.Fatalf("events before %d = %d, want 3", base+3, len(got))
	}
	for _, e := range got {
		if e.Timestamp >= base+3 {
			t.Errorf("event %s at %d not before cutoff", e.TransactionHash, e.Timestamp)
		}
	}
}

func TestStartStop(t *testing.T) {
	source := &fakeFollowSource{}
	r := newTestRunner(RunnerConfig{PollInterval: 10 * time.Millisecond}, source)

	r.Start(context.Background())
	if !r.Status().Running {
		t.Fatal("runner not running after start")
	}
	r.Start(context.Background()) // idempotent
	r.Stop()
	if r.Status().Running {
		t.Fatal("runner still running after stop")
	}
	r.Stop() // idempotent
}
