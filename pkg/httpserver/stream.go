package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/books"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteWait    = 10 * time.Second
)

//nolint:gochecknoglobals // upgrader is stateless
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamFrame is one message pushed to a market stream client.
type streamFrame struct {
	Type        string              `json:"type"` // init, pair, book, price, trade, error
	ConditionID string              `json:"conditionId,omitempty"`
	Market      *types.Market       `json:"market,omitempty"`
	YesAssetID  string              `json:"yesAssetId,omitempty"`
	NoAssetID   string              `json:"noAssetId,omitempty"`
	Book        *types.BookSnapshot `json:"book,omitempty"`
	AssetID     string              `json:"assetId,omitempty"`
	Price       float64             `json:"price,omitempty"`
	Trade       *books.PricePoint   `json:"trade,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// handleMarketStream upgrades to WebSocket and pushes book, price and trade
// frames for one market until the client disconnects.
func (s *Server) handleMarketStream(w http.ResponseWriter, r *http.Request) {
	conditionID := chi.URLParam(r, "conditionId")

	market, err := s.cfg.Markets.MarketByConditionID(r.Context(), conditionID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	pair, ok := types.PairFromMarket(market)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "market is not a binary pair")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("market-stream-opened",
		zap.String("condition-id", conditionID),
		zap.String("remote", r.RemoteAddr))

	assets := []string{pair.YesAssetID, pair.NoAssetID}
	s.cfg.Books.RegisterPair(pair)
	if s.cfg.Subscriber != nil {
		if err := s.cfg.Subscriber.Subscribe(s.runCtx, assets); err != nil {
			s.sendFrame(conn, &streamFrame{Type: "error", Error: "subscribe failed: " + err.Error()})
			return
		}
		defer func() {
			if err := s.cfg.Subscriber.Unsubscribe(s.runCtx, assets); err != nil {
				s.logger.Warn("stream-unsubscribe-failed", zap.Error(err))
			}
		}()
	}

	if !s.sendFrame(conn, &streamFrame{Type: "init", ConditionID: conditionID, Market: market}) {
		return
	}
	if !s.sendFrame(conn, &streamFrame{
		Type:        "pair",
		ConditionID: conditionID,
		YesAssetID:  pair.YesAssetID,
		NoAssetID:   pair.NoAssetID,
	}) {
		return
	}

	// Drain the client side so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	lastSeq := make(map[string]int64, len(assets))
	lastTradeTS := make(map[string]int64, len(assets))

	for {
		select {
		case <-done:
			s.logger.Info("market-stream-closed", zap.String("condition-id", conditionID))
			return
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			for _, assetID := range assets {
				if book, ok := s.cfg.Books.GetBook(assetID); ok && book.Sequence != lastSeq[assetID] {
					lastSeq[assetID] = book.Sequence
					if !s.sendFrame(conn, &streamFrame{Type: "book", ConditionID: conditionID, Book: book}) {
						return
					}
				}
				point, ok := s.cfg.Books.GetPrice(assetID)
				if !ok || point.Timestamp == lastTradeTS[assetID] {
					continue
				}
				lastTradeTS[assetID] = point.Timestamp
				if !s.sendFrame(conn, &streamFrame{
					Type:        "price",
					ConditionID: conditionID,
					AssetID:     assetID,
					Price:       point.Price,
				}) {
					return
				}
				if !s.sendFrame(conn, &streamFrame{Type: "trade", ConditionID: conditionID, Trade: point}) {
					return
				}
			}
		}
	}
}

// sendFrame writes one frame, reporting false when the connection is gone.
func (s *Server) sendFrame(conn *websocket.Conn, frame *streamFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("stream-write-failed", zap.Error(err))
		return false
	}
	return true
}
