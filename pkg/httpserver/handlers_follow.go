package httpserver

import (
	"net/http"
	"time"

	"github.com/dmarch/polymarket-trader/internal/follow"
)

// followStartRequest is the wire form of a runner config.
type followStartRequest struct {
	TargetAddress   string   `json:"targetAddress"`
	PollIntervalMs  int      `json:"pollIntervalMs"`
	FetchLimit      int      `json:"fetchLimit"`
	Types           []string `json:"types"`
	Sides           []string `json:"sides"`
	IncludeKeywords []string `json:"includeKeywords"`
	ExcludeKeywords []string `json:"excludeKeywords"`
	Ratio           float64  `json:"ratio"`
	MaxUsdcPerOrder float64  `json:"maxUsdcPerOrder"`
	MaxUsdcPerDay   float64  `json:"maxUsdcPerDay"`
	MinUsdcPerOrder float64  `json:"minUsdcPerOrder"`
}

func (req *followStartRequest) runnerConfig() follow.RunnerConfig {
	return follow.RunnerConfig{
		TargetAddress:   req.TargetAddress,
		PollInterval:    time.Duration(req.PollIntervalMs) * time.Millisecond,
		FetchLimit:      req.FetchLimit,
		Types:           req.Types,
		Sides:           req.Sides,
		IncludeKeywords: req.IncludeKeywords,
		ExcludeKeywords: req.ExcludeKeywords,
		Ratio:           req.Ratio,
		MaxUsdcPerOrder: req.MaxUsdcPerOrder,
		MaxUsdcPerDay:   req.MaxUsdcPerDay,
		MinUsdcPerOrder: req.MinUsdcPerOrder,
	}
}

func (s *Server) handleFollowStart(w http.ResponseWriter, r *http.Request) {
	var req followStartRequest
	if err := decodeBody(r, &req); err != nil || req.TargetAddress == "" {
		s.writeError(w, http.StatusBadRequest, "targetAddress is required")
		return
	}

	s.followMu.Lock()
	defer s.followMu.Unlock()

	if s.runner != nil && s.runner.Status().Running {
		s.writeError(w, http.StatusConflict, "a follow runner is already active")
		return
	}

	runner := follow.NewRunner(req.runnerConfig(), s.cfg.FollowSource, s.logger)
	runner.Start(s.runCtx)
	s.cfg.AutoTrader.Start(s.runCtx, runner.Suggestions())
	s.runner = runner

	s.writeJSON(w, http.StatusOK, runner.Status())
}

func (s *Server) handleFollowStop(w http.ResponseWriter, r *http.Request) {
	s.followMu.Lock()
	defer s.followMu.Unlock()

	if s.runner == nil {
		s.writeError(w, http.StatusNotFound, "no follow runner active")
		return
	}
	s.runner.Stop()
	s.cfg.AutoTrader.Stop()
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleFollowConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SuggestionID string `json:"suggestionId"`
	}
	if err := decodeBody(r, &req); err != nil || req.SuggestionID == "" {
		s.writeError(w, http.StatusBadRequest, "suggestionId is required")
		return
	}

	exec, err := s.cfg.AutoTrader.ExecutePending(r.Context(), req.SuggestionID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleFollowStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"autotrade": s.cfg.AutoTrader.Status(),
	}
	s.followMu.Lock()
	if s.runner != nil {
		resp["runner"] = s.runner.Status()
	}
	s.followMu.Unlock()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFollowActivities(w http.ResponseWriter, r *http.Request) {
	s.followMu.Lock()
	runner := s.runner
	s.followMu.Unlock()
	if runner == nil {
		s.writeError(w, http.StatusNotFound, "no follow runner active")
		return
	}
	before := int64(queryInt(r, "before", 0))
	limit := queryInt(r, "limit", 100)
	s.writeJSON(w, http.StatusOK, runner.Events(before, limit))
}

func (s *Server) handleFollowSuggestions(w http.ResponseWriter, r *http.Request) {
	s.followMu.Lock()
	runner := s.runner
	s.followMu.Unlock()
	if runner == nil {
		s.writeError(w, http.StatusNotFound, "no follow runner active")
		return
	}
	s.writeJSON(w, http.StatusOK, runner.SuggestionList())
}

// autoTradeConfigRequest is the wire form of an auto-trader config. Omitted
// fields keep their current values.
type autoTradeConfigRequest struct {
	Mode                *string  `json:"mode"`
	Style               *string  `json:"style"`
	Paper               *bool    `json:"paper"`
	PriceBufferCents    *float64 `json:"priceBufferCents"`
	SweepPriceCapCents  *float64 `json:"sweepPriceCapCents"`
	SweepMaxOrders      *int     `json:"sweepMaxOrders"`
	SweepMaxUsdcPerEvnt *float64 `json:"sweepMaxUsdcPerEvent"`
	SweepMinIntervalMs  *int     `json:"sweepMinIntervalMs"`
	MaxOrdersPerHour    *int     `json:"maxOrdersPerHour"`
	AllowConditionIDs   []string `json:"allowConditionIds"`
	DenyConditionIDs    []string `json:"denyConditionIds"`
	BookTTLSeconds      *int     `json:"bookTtlSeconds"`
}

func (s *Server) handleAutoTradeConfig(w http.ResponseWriter, r *http.Request) {
	var req autoTradeConfigRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid config payload")
		return
	}

	cfg := s.cfg.AutoTrader.Config()
	if req.Mode != nil {
		if *req.Mode != follow.ModeQueue && *req.Mode != follow.ModeAuto {
			s.writeError(w, http.StatusBadRequest, "mode must be queue or auto")
			return
		}
		cfg.Mode = *req.Mode
	}
	if req.Style != nil {
		if *req.Style != follow.StyleCopy && *req.Style != follow.StyleSweep {
			s.writeError(w, http.StatusBadRequest, "style must be copy or sweep")
			return
		}
		cfg.Style = *req.Style
	}
	if req.Paper != nil {
		cfg.Paper = *req.Paper
	}
	if req.PriceBufferCents != nil {
		cfg.PriceBufferCents = *req.PriceBufferCents
	}
	if req.SweepPriceCapCents != nil {
		cfg.SweepPriceCapCents = *req.SweepPriceCapCents
	}
	if req.SweepMaxOrders != nil {
		cfg.SweepMaxOrders = *req.SweepMaxOrders
	}
	if req.SweepMaxUsdcPerEvnt != nil {
		cfg.SweepMaxUsdcPerEvnt = *req.SweepMaxUsdcPerEvnt
	}
	if req.SweepMinIntervalMs != nil {
		cfg.SweepMinInterval = time.Duration(*req.SweepMinIntervalMs) * time.Millisecond
	}
	if req.MaxOrdersPerHour != nil {
		cfg.MaxOrdersPerHour = *req.MaxOrdersPerHour
	}
	if req.AllowConditionIDs != nil {
		cfg.AllowConditionIDs = req.AllowConditionIDs
	}
	if req.DenyConditionIDs != nil {
		cfg.DenyConditionIDs = req.DenyConditionIDs
	}
	if req.BookTTLSeconds != nil {
		cfg.BookTTL = time.Duration(*req.BookTTLSeconds) * time.Second
	}

	s.cfg.AutoTrader.SetConfig(cfg)
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.Status())
}

func (s *Server) handleAutoTradeStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.Status())
}

func (s *Server) handlePaperStatus(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.AutoTrader.Status()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"paper":      status.Paper,
		"executions": status.PaperExecutions,
		"running":    status.Running,
	})
}

func (s *Server) handlePaperHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.PaperHistory())
}

func (s *Server) handlePaperSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.Summary())
}

func (s *Server) handleAutoTradePending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.Pending())
}

func (s *Server) handleAutoTradeHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.AutoTrader.History())
}
