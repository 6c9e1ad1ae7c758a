package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RebalanceAction is the direction of a rebalance.
type RebalanceAction string

const (
	ActionMerge RebalanceAction = "merge" // too much inventory: pair tokens back into USDC
	ActionSplit RebalanceAction = "split" // too much USDC: mint fresh pairs
)

// RebalanceDecision is the outcome of evaluating the wallet ratio.
type RebalanceDecision struct {
	Action   RebalanceAction
	Amount   float64 // USDC notional to move
	Ratio    float64 // observed USDC share of total
	Priority int     // 0-100, scales with how far outside the band
}

// RebalancerConfig holds ratio-maintenance tuning.
type RebalancerConfig struct {
	TargetRatio     float64       // USDC share of (USDC + paired tokens)
	Tolerance       float64       // band half-width around the target
	Cooldown        time.Duration // minimum gap between rebalances
	MaxConsecutive  int           // consecutive rebalances before escalation
	EscalationScale float64       // cooldown multiplier once escalated
	Logger          *zap.Logger
}

func (c *RebalancerConfig) applyDefaults() {
	if c.TargetRatio <= 0 || c.TargetRatio >= 1 {
		c.TargetRatio = 0.5
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 0.15
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	if c.MaxConsecutive <= 0 {
		c.MaxConsecutive = 3
	}
	if c.EscalationScale <= 1 {
		c.EscalationScale = 3
	}
}

// Rebalancer keeps the wallet's USDC-to-token ratio inside the configured
// band. The cooldown, escalated after a run of consecutive rebalances,
// breaks the feedback loop where each rebalance shifts the ratio enough to
// trigger the next.
type Rebalancer struct {
	settle settler
	cfg    RebalancerConfig
	logger *zap.Logger

	mu          sync.Mutex
	lastRun     time.Time
	consecutive int
	now         func() time.Time
}

// NewRebalancer creates a rebalancer using the settlement client for
// merges and splits.
func NewRebalancer(cfg RebalancerConfig, settle settler) *Rebalancer {
	cfg.applyDefaults()
	return &Rebalancer{
		settle: settle,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Evaluate inspects the wallet ratio and returns a decision, or nil when the
// ratio sits inside the band. usdcUSD is spendable collateral;
// pairedTokensUSD is the dollar value of mergeable outcome pairs.
func (r *Rebalancer) Evaluate(usdcUSD, pairedTokensUSD float64) *RebalanceDecision {
	total := usdcUSD + pairedTokensUSD
	if total <= 0 {
		return nil
	}

	ratio := usdcUSD / total
	deviation := ratio - r.cfg.TargetRatio
	if deviation > -r.cfg.Tolerance && deviation < r.cfg.Tolerance {
		return nil
	}

	// Move just enough to land back on the target.
	delta := usdcUSD - r.cfg.TargetRatio*total

	decision := &RebalanceDecision{Ratio: ratio, Priority: rebalancePriority(deviation, r.cfg.Tolerance)}
	if delta > 0 {
		decision.Action = ActionSplit
		decision.Amount = min(delta, usdcUSD)
	} else {
		decision.Action = ActionMerge
		decision.Amount = min(-delta, pairedTokensUSD)
	}
	return decision
}

// rebalancePriority maps band deviation onto 0-100: crossing the band edge
// starts at 50 and twice the tolerance saturates at 100.
func rebalancePriority(deviation, tolerance float64) int {
	abs := deviation
	if abs < 0 {
		abs = -abs
	}
	p := int(50 * abs / tolerance)
	return min(p, 100)
}

// Maybe executes a rebalance for one market if the ratio is outside the band
// and the cooldown has elapsed. Returns the decision acted on, or nil when
// nothing was done.
func (r *Rebalancer) Maybe(ctx context.Context, conditionID string, negRisk bool, usdcUSD, pairedTokensUSD float64) (*RebalanceDecision, error) {
	decision := r.Evaluate(usdcUSD, pairedTokensUSD)
	if decision == nil {
		r.resetConsecutive()
		return nil, nil
	}
	if decision.Amount <= 0 {
		return nil, nil
	}

	if !r.cooldownElapsed() {
		RebalancesTotal.WithLabelValues(string(decision.Action), "cooldown").Inc()
		return nil, nil
	}

	var err error
	cond := common.HexToHash(conditionID)
	switch decision.Action {
	case ActionSplit:
		_, err = r.settle.Split(ctx, cond, decision.Amount, negRisk)
	case ActionMerge:
		_, err = r.settle.MergeByTokenIDs(ctx, cond, decision.Amount, negRisk)
	}
	if err != nil {
		RebalancesTotal.WithLabelValues(string(decision.Action), "error").Inc()
		return nil, fmt.Errorf("rebalance %s %.2f: %w", decision.Action, decision.Amount, err)
	}

	r.noteRun()
	RebalancesTotal.WithLabelValues(string(decision.Action), "ok").Inc()
	r.logger.Info("rebalance-executed",
		zap.String("action", string(decision.Action)),
		zap.Float64("amount", decision.Amount),
		zap.Float64("ratio", decision.Ratio),
		zap.Int("priority", decision.Priority))
	return decision, nil
}

// cooldownElapsed applies the escalated cooldown once the consecutive run
// exceeds the limit.
func (r *Rebalancer) cooldownElapsed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cooldown := r.cfg.Cooldown
	if r.consecutive >= r.cfg.MaxConsecutive {
		cooldown = time.Duration(float64(cooldown) * r.cfg.EscalationScale)
	}
	return r.lastRun.IsZero() || r.now().Sub(r.lastRun) >= cooldown
}

func (r *Rebalancer) noteRun() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun = r.now()
	r.consecutive++
}

// resetConsecutive clears the run counter once an evaluation finds the
// wallet back inside the band.
func (r *Rebalancer) resetConsecutive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive = 0
}

// PausesQuotes reports whether a pending decision should pause strategy
// quoting.
func (r *Rebalancer) PausesQuotes(decision *RebalanceDecision, pauseThreshold int) bool {
	return decision != nil && decision.Priority >= pauseThreshold
}
