package httpserver

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleTrendingMarkets(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	markets, err := s.cfg.Markets.TrendingMarkets(r.Context(), limit)
	if err != nil {
		s.logger.Warn("trending-markets-failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, markets)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	market, err := s.lookupMarket(r, id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, market)
}

// lookupMarket resolves a path id that may be either a Gamma id or a
// condition id (0x-prefixed).
func (s *Server) lookupMarket(r *http.Request, id string) (*types.Market, error) {
	if len(id) > 2 && id[:2] == "0x" {
		return s.cfg.Markets.MarketByConditionID(r.Context(), id)
	}
	return s.cfg.Markets.MarketByID(r.Context(), id)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	market, err := s.lookupMarket(r, id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	pair, ok := types.PairFromMarket(market)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "market is not a binary pair")
		return
	}

	yes, err := s.cfg.Markets.ProcessedBook(r.Context(), pair.YesAssetID, pair.ConditionID, "YES")
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	no, err := s.cfg.Markets.ProcessedBook(r.Context(), pair.NoAssetID, pair.ConditionID, "NO")
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*types.BookSnapshot{
		"yes": yes,
		"no":  no,
	})
}

func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	market, err := s.lookupMarket(r, id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	pair, ok := types.PairFromMarket(market)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "market is not a binary pair")
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1d"
	}
	fidelity := queryInt(r, "fidelity", 0)

	history, err := s.cfg.Markets.PriceHistory(r.Context(), pair.YesAssetID, interval, fidelity)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditionId": pair.ConditionID,
		"assetId":     pair.YesAssetID,
		"interval":    interval,
		"history":     history,
	})
}

// scanRow is one opportunity in the scan response, annotated with how long
// ago the scanner last confirmed it.
type scanRow struct {
	*arbitrage.Opportunity
	AgeSeconds float64 `json:"ageSeconds"`
}

func (s *Server) handleArbitrageScan(w http.ResponseWriter, r *http.Request) {
	minProfit := queryFloat(r, "minProfit", 0)
	limit := queryInt(r, "limit", 0)

	now := time.Now()
	opps := s.cfg.Opportunities.Snapshot()
	rows := make([]scanRow, 0, len(opps))
	for _, opp := range opps {
		if opp.ProfitRate < minProfit {
			continue
		}
		rows = append(rows, scanRow{
			Opportunity: opp,
			AgeSeconds:  now.Sub(opp.DetectedAt).Seconds(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ProfitRate > rows[j].ProfitRate
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(rows),
		"opportunities": rows,
	})
}

func (s *Server) handleArbitrageExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpportunityID string `json:"opportunityId"`
	}
	if err := decodeBody(r, &req); err != nil || req.OpportunityID == "" {
		s.writeError(w, http.StatusBadRequest, "opportunityId is required")
		return
	}

	var opp *arbitrage.Opportunity
	for _, candidate := range s.cfg.Opportunities.Snapshot() {
		if candidate.ID == req.OpportunityID {
			opp = candidate
			break
		}
	}
	if opp == nil {
		s.writeError(w, http.StatusNotFound, "opportunity no longer live")
		return
	}

	result, err := s.cfg.Executor.Execute(r.Context(), opp)
	if err != nil {
		s.logger.Warn("manual-execution-failed",
			zap.String("opportunity-id", req.OpportunityID),
			zap.Error(err))
		status := http.StatusBadGateway
		if types.IsKind(err, types.KindValidation) {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSON(w, status, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board := r.URL.Query().Get("board")
	if board == "" {
		board = "pnl"
	}
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "30d"
	}
	limit := queryInt(r, "limit", 50)

	entries, err := s.cfg.Wallets.Leaderboard(r.Context(), board, window, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWalletProfile(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	if s.cfg.WhaleCache != nil {
		if entry, ok := s.cfg.WhaleCache.Get(addr); ok {
			s.writeJSON(w, http.StatusOK, entry)
			return
		}
	}

	// No cached metrics yet: derive a one-shot profile from recent trades.
	trades, err := s.cfg.Wallets.UserTrades(r.Context(), addr, 500)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	var volume float64
	for i := range trades {
		volume += trades[i].UsdcSize
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":    addr,
		"tradeCount": len(trades),
		"volume":     volume,
		"cached":     false,
	})
}

func (s *Server) handleWalletPositions(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	positions, err := s.cfg.Wallets.Positions(r.Context(), addr)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleWalletActivity(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	limit := queryInt(r, "limit", 100)
	typeFilter := r.URL.Query().Get("type")

	events, err := s.cfg.Wallets.GetAllActivity(r.Context(), addr, limit, typeFilter)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}
