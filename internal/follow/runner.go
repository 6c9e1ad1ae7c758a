package follow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// activitySource is the slice of the REST gateway the runner needs.
type activitySource interface {
	GetAllActivity(ctx context.Context, address string, maxRows int, typeFilter string) ([]types.ActivityEvent, error)
}

// Runner polls one target wallet's activity and turns new events into
// suggestions. Events older than the runner's start are ignored so a
// restart never replays history.
type Runner struct {
	id     string
	source activitySource
	cfg    RunnerConfig
	logger *zap.Logger

	mu             sync.Mutex
	running        bool
	startedAt      time.Time
	lastSeenTxHash string
	events         []types.ActivityEvent // bounded ring, newest last
	suggestions    []*Suggestion         // bounded ring, newest last
	quota          []quotaEntry          // accepted spend in the last 24h

	out    chan *Suggestion
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type quotaEntry struct {
	at   time.Time
	usdc float64
}

// NewRunner creates a runner for one target wallet.
func NewRunner(cfg RunnerConfig, source activitySource, logger *zap.Logger) *Runner {
	cfg.ApplyDefaults()
	return &Runner{
		id:     uuid.New().String(),
		source: source,
		cfg:    cfg,
		logger: logger,
		out:    make(chan *Suggestion, 100),
	}
}

// ID returns the runner's identifier, the namespace for suggestion IDs.
func (r *Runner) ID() string { return r.id }

// Suggestions streams accepted suggestions to the auto-trader.
func (r *Runner) Suggestions() <-chan *Suggestion { return r.out }

// Start launches the poll loop. Idempotent while running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.logger.Info("follow-runner-starting",
		zap.String("runner-id", r.id),
		zap.String("target", r.cfg.TargetAddress),
		zap.Duration("poll-interval", r.cfg.PollInterval))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				r.logger.Info("follow-runner-stopping", zap.String("runner-id", r.id))
				return
			case <-ticker.C:
				r.poll(runCtx)
			}
		}
	}()
}

// Stop halts the poll loop after the current poll.
func (r *Runner) Stop() {
	r.mu.Lock()
	running := r.running
	r.running = false
	r.mu.Unlock()
	if !running {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// poll fetches the latest activity and processes unseen rows oldest-first.
func (r *Runner) poll(ctx context.Context) {
	rows, err := r.source.GetAllActivity(ctx, r.cfg.TargetAddress, r.cfg.FetchLimit, "")
	if err != nil {
		r.logger.Warn("follow-poll-failed",
			zap.String("runner-id", r.id),
			zap.Error(err))
		PollErrorsTotal.Inc()
		return
	}
	if len(rows) == 0 {
		return
	}

	r.mu.Lock()
	lastSeen := r.lastSeenTxHash
	started := r.startedAt
	r.mu.Unlock()

	// Rows arrive newest-first; cut at the last processed hash and flip to
	// chronological order.
	fresh := make([]types.ActivityEvent, 0, len(rows))
	for i := range rows {
		if rows[i].Fingerprint() == lastSeen {
			break
		}
		fresh = append(fresh, rows[i])
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}

	for i := range fresh {
		event := &fresh[i]
		if event.Time().Before(started) {
			continue
		}
		r.handleEvent(event)
	}

	r.mu.Lock()
	r.lastSeenTxHash = rows[0].Fingerprint()
	r.mu.Unlock()
}

// handleEvent records the event and runs the filter chain.
func (r *Runner) handleEvent(event *types.ActivityEvent) {
	r.mu.Lock()
	r.events = append(r.events, *event)
	if len(r.events) > r.cfg.RingSize {
		r.events = r.events[len(r.events)-r.cfg.RingSize:]
	}
	r.mu.Unlock()
	EventsSeenTotal.Inc()

	suggestion := r.buildSuggestion(event)
	r.mu.Lock()
	r.suggestions = append(r.suggestions, suggestion)
	if len(r.suggestions) > r.cfg.RingSize {
		r.suggestions = r.suggestions[len(r.suggestions)-r.cfg.RingSize:]
	}
	r.mu.Unlock()

	if suggestion.Status == SuggestionDropped {
		SuggestionsTotal.WithLabelValues("dropped").Inc()
		return
	}
	SuggestionsTotal.WithLabelValues("accepted").Inc()
	r.logger.Info("follow-suggestion-created",
		zap.String("suggestion-id", suggestion.ID),
		zap.String("side", suggestion.Event.Side),
		zap.Float64("suggested-usdc", suggestion.SuggestedUSDC),
		zap.String("title", suggestion.Event.Title))

	select {
	case r.out <- suggestion:
	default:
		r.logger.Warn("suggestion-channel-full", zap.String("suggestion-id", suggestion.ID))
	}
}

// buildSuggestion applies the filter chain in order: type/side, keywords,
// ratio scaling, daily quota. Filtered events still produce a (dropped)
// record so the HTTP layer can show why.
func (r *Runner) buildSuggestion(event *types.ActivityEvent) *Suggestion {
	s := &Suggestion{
		ID:        SuggestionID(r.id, event.Fingerprint()),
		RunnerID:  r.id,
		Event:     *event,
		CreatedAt: time.Now(),
	}

	if !contains(r.cfg.Types, event.Type) || !contains(r.cfg.Sides, event.Side) {
		s.Status, s.DropReason = SuggestionDropped, DropTypeFiltered
		return s
	}
	if !r.keywordsPass(event) {
		s.Status = SuggestionDropped
		if excluded(r.cfg.ExcludeKeywords, event) {
			s.DropReason = DropKeywordExcluded
		} else {
			s.DropReason = DropKeywordMissing
		}
		return s
	}

	usdc := min(event.UsdcSize*r.cfg.Ratio, r.cfg.MaxUsdcPerOrder)
	if usdc < r.cfg.MinUsdcPerOrder {
		s.Status, s.DropReason = SuggestionDropped, DropBelowMinimum
		return s
	}

	// Daily quota: the rejected suggestion's amount never joins the running
	// sum, so one oversized event cannot block the rest of the day.
	if !r.reserveQuota(usdc) {
		s.Status, s.DropReason = SuggestionDropped, DropQuotaExceeded
		QuotaDropsTotal.Inc()
		return s
	}

	s.SuggestedUSDC = usdc
	s.Status = SuggestionPending
	return s
}

func (r *Runner) keywordsPass(event *types.ActivityEvent) bool {
	if excluded(r.cfg.ExcludeKeywords, event) {
		return false
	}
	if len(r.cfg.IncludeKeywords) == 0 {
		return true
	}
	haystack := strings.ToLower(event.Title + " " + event.Slug)
	for _, kw := range r.cfg.IncludeKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func excluded(keywords []string, event *types.ActivityEvent) bool {
	haystack := strings.ToLower(event.Title + " " + event.Slug)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// reserveQuota admits usdc into the rolling 24h budget when it fits.
func (r *Runner) reserveQuota(usdc float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	kept := r.quota[:0]
	used := 0.0
	for _, q := range r.quota {
		if q.at.After(cutoff) {
			kept = append(kept, q)
			used += q.usdc
		}
	}
	r.quota = kept

	if used+usdc > r.cfg.MaxUsdcPerDay {
		return false
	}
	r.quota = append(r.quota, quotaEntry{at: time.Now(), usdc: usdc})
	return true
}

// quotaUsed returns the accepted spend in the rolling window.
func (r *Runner) quotaUsed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-24 * time.Hour)
	used := 0.0
	for _, q := range r.quota {
		if q.at.After(cutoff) {
			used += q.usdc
		}
	}
	return used
}

// Status returns a snapshot for the HTTP layer.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	made := 0
	for _, s := range r.suggestions {
		if s.Status != SuggestionDropped {
			made++
		}
	}
	status := RunnerStatus{
		RunnerID:        r.id,
		TargetAddress:   r.cfg.TargetAddress,
		Running:         r.running,
		LastSeenTxHash:  r.lastSeenTxHash,
		EventsSeen:      len(r.events),
		SuggestionsMade: made,
	}
	if r.running {
		status.StartedAt = r.startedAt
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, q := range r.quota {
		if q.at.After(cutoff) {
			status.QuotaUsedUSDC += q.usdc
		}
	}
	return status
}

// Events returns ring entries older than before (unix seconds); zero means
// all. Newest last.
func (r *Runner) Events(before int64, limit int) []types.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.ActivityEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if before > 0 && r.events[i].Timestamp >= before {
			continue
		}
		out = append(out, r.events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SuggestionList returns the suggestion ring, newest last.
func (r *Runner) SuggestionList() []*Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Suggestion(nil), r.suggestions...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
