package whale

import (
	"time"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// computeWindows derives per-window metrics from a wallet's activity history
// and open positions. events must be timestamp-descending, as the activity
// endpoints deliver them. capped signals that the fetch hit its row limit:
// any window whose boundary lies beyond the oldest returned event is then
// nulled out, because "no rows before the boundary" cannot be distinguished
// from "rows we never fetched".
func computeWindows(events []types.ActivityEvent, positions []types.Position, now time.Time, capped bool) map[Window]*WindowMetrics {
	var oldest time.Time
	if len(events) > 0 {
		oldest = events[len(events)-1].Time()
	}

	unrealized := 0.0
	for i := range positions {
		unrealized += positions[i].CashPnL
	}

	out := make(map[Window]*WindowMetrics, len(Windows))
	for _, w := range Windows {
		var boundary time.Time
		if d := w.Duration(); d > 0 {
			boundary = now.Add(-d)
		}

		if capped && oldest.After(boundary) {
			out[w] = nil
			continue
		}

		m, invested := windowMetrics(events, boundary)
		if w == WindowAll {
			m.PnL += unrealized
		}
		m.SmartScore = smartScore(m.PnL, invested, m.TradeCount)
		out[w] = m
	}
	return out
}

// windowMetrics aggregates the events at or after boundary. A zero boundary
// includes everything. invested is the buy-side volume, the base for ROI.
func windowMetrics(events []types.ActivityEvent, boundary time.Time) (m *WindowMetrics, invested float64) {
	var buyVolume, sellVolume, redemptionValue float64
	tradeCount := 0

	// Per-market ledger for the win-rate: a market counts as ended once a
	// redemption shows up, and as won when its net flow is positive.
	type marketFlow struct {
		net   float64
		ended bool
	}
	flows := make(map[string]*marketFlow)

	flow := func(conditionID string) *marketFlow {
		f, ok := flows[conditionID]
		if !ok {
			f = &marketFlow{}
			flows[conditionID] = f
		}
		return f
	}

	for i := range events {
		e := &events[i]
		if !boundary.IsZero() && e.Time().Before(boundary) {
			continue
		}

		switch e.Type {
		case types.ActivityTrade:
			tradeCount++
			if e.Side == types.SideBuy {
				buyVolume += e.UsdcSize
				flow(e.ConditionID).net -= e.UsdcSize
			} else {
				sellVolume += e.UsdcSize
				flow(e.ConditionID).net += e.UsdcSize
			}
		case types.ActivityRedeem:
			redemptionValue += e.UsdcSize
			f := flow(e.ConditionID)
			f.net += e.UsdcSize
			f.ended = true
		}
	}

	wins, ended := 0, 0
	for _, f := range flows {
		if !f.ended {
			continue
		}
		ended++
		if f.net > 0 {
			wins++
		}
	}

	m = &WindowMetrics{
		PnL:        sellVolume + redemptionValue - buyVolume,
		Volume:     buyVolume + sellVolume,
		TradeCount: tradeCount,
	}
	if ended > 0 {
		m.WinRate = float64(wins) / float64(ended)
	}
	return m, buyVolume
}

// smartScore maps a window onto 0-100: 50 is neutral, ROI moves it 3 points
// per percent, and activity adds up to 20.
func smartScore(pnl, invested float64, tradeCount int) float64 {
	roiPct := 0.0
	if invested > 0 {
		roiPct = pnl / invested * 100
	}

	activity := min(20.0, float64(tradeCount)/10)
	score := 50 + 3*roiPct + activity
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
