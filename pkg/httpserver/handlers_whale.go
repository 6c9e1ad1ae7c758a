package httpserver

import (
	"net/http"
	"strings"
)

func (s *Server) handleWhaleStart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Whale.Running() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "already-running"})
		return
	}
	s.cfg.Whale.Start(s.runCtx)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleWhaleStop(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Whale.Running() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "not-running"})
		return
	}
	s.cfg.Whale.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleWhaleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"running":      s.cfg.Whale.Running(),
		"whales":       len(s.cfg.Whale.Whales()),
		"recentTrades": len(s.cfg.Whale.RecentTrades()),
		"queueDepth":   s.cfg.Whale.QueueDepth(),
	}
	if s.cfg.WhaleCache != nil {
		status["cacheSize"] = s.cfg.WhaleCache.Size()
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleWhaleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Whale.Whales())
}

func (s *Server) handleWhaleTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Whale.RecentTrades())
}

func (s *Server) handleWhaleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Whale.Config())
}

func (s *Server) handleWhaleSetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Whale.Config()
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid config payload")
		return
	}
	s.cfg.Whale.SetConfig(cfg)
	s.writeJSON(w, http.StatusOK, s.cfg.Whale.Config())
}

func (s *Server) handleWhaleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WhaleCache == nil {
		s.writeError(w, http.StatusNotImplemented, "wallet cache not configured")
		return
	}
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.Addresses) == 0 {
		s.writeError(w, http.StatusBadRequest, "addresses are required")
		return
	}
	for _, addr := range req.Addresses {
		s.cfg.WhaleCache.Enqueue(addr)
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": len(req.Addresses)})
}

func (s *Server) handleWhaleCacheBulk(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WhaleCache == nil {
		s.writeError(w, http.StatusNotImplemented, "wallet cache not configured")
		return
	}
	raw := r.URL.Query().Get("addresses")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "addresses query parameter is required")
		return
	}
	addresses := strings.Split(raw, ",")
	s.writeJSON(w, http.StatusOK, s.cfg.WhaleCache.Bulk(addresses))
}
