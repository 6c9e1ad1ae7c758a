package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

func newTestManager(bufferSize int) *Manager {
	return New(Config{
		URL:                   "ws://unused",
		DialTimeout:           time.Second,
		PingInterval:          time.Second,
		ReconnectInitialDelay: time.Millisecond,
		ReconnectMaxDelay:     10 * time.Millisecond,
		ReconnectBackoffMult:  2.0,
		MessageBufferSize:     bufferSize,
		Logger:                zap.NewNop(),
	})
}

func TestDispatch_ArrayOfEvents(t *testing.T) {
	m := newTestManager(10)

	frame := `[
		{"event_type":"book","asset_id":"111","market":"0xc","timestamp":"1700000001000",
		 "bids":[{"price":"0.48","size":"100"}],"asks":[{"price":"0.52","size":"80"}]},
		{"event_type":"last_trade_price","asset_id":"111","price":"0.50","side":"BUY","size":"10"}
	]`
	m.dispatch([]byte(frame))

	var got []*types.MarketMessage
	for len(got) < 2 {
		select {
		case msg := <-m.messageChan:
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatalf("received %d messages, want 2", len(got))
		}
	}

	if got[0].EventType != types.EventBook {
		t.Errorf("first event type = %q, want book", got[0].EventType)
	}
	if got[0].Timestamp != 1700000001000 {
		t.Errorf("timestamp = %d, want parsed string timestamp", got[0].Timestamp)
	}
	if got[1].EventType != types.EventLastTradePrice {
		t.Errorf("second event type = %q, want last_trade_price", got[1].EventType)
	}
	if got[1].Price != "0.50" {
		t.Errorf("trade price = %q, want 0.50", got[1].Price)
	}
}

func TestDispatch_HeartbeatIgnored(t *testing.T) {
	m := newTestManager(10)

	m.dispatch([]byte("[]"))
	m.dispatch([]byte(""))

	select {
	case msg := <-m.messageChan:
		t.Fatalf("unexpected message %+v from heartbeat frame", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatch_ControlMessageIgnored(t *testing.T) {
	m := newTestManager(10)

	m.dispatch([]byte(`{"type":"subscribed","assets_ids":["111"]}`))

	select {
	case msg := <-m.messageChan:
		t.Fatalf("unexpected message %+v from control frame", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatch_FullChannelDropsWithoutBlocking(t *testing.T) {
	m := newTestManager(1)

	frame := `[
		{"event_type":"book","asset_id":"1"},
		{"event_type":"book","asset_id":"2"},
		{"event_type":"book","asset_id":"3"}
	]`

	done := make(chan struct{})
	go func() {
		m.dispatch([]byte(frame))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on full channel")
	}

	if got := len(m.messageChan); got != 1 {
		t.Errorf("buffered messages = %d, want 1", got)
	}
}

func TestSubscribe_SendsMarketThenOperationMessages(t *testing.T) {
	received := make(chan map[string]interface{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	m := newTestManager(10)
	m.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	m.config.URL = m.url

	if err := m.connect(context.Background()); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	defer m.conn.Close()

	if err := m.Subscribe(context.Background(), []string{"111", "222"}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	first := <-received
	if first["type"] != "market" {
		t.Errorf("initial subscribe type = %v, want market", first["type"])
	}

	if err := m.Subscribe(context.Background(), []string{"333"}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	second := <-received
	if second["operation"] != "subscribe" {
		t.Errorf("dynamic subscribe operation = %v, want subscribe", second["operation"])
	}

	// Duplicate subscribe is a no-op and writes nothing.
	if err := m.Subscribe(context.Background(), []string{"111"}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	select {
	case msg := <-received:
		t.Fatalf("unexpected frame %v for duplicate subscribe", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if got := m.SubscribedCount(); got != 3 {
		t.Errorf("SubscribedCount() = %d, want 3", got)
	}

	if err := m.Unsubscribe(context.Background(), []string{"222"}); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	third := <-received
	if third["operation"] != "unsubscribe" {
		t.Errorf("unsubscribe operation = %v, want unsubscribe", third["operation"])
	}
	if got := m.SubscribedCount(); got != 2 {
		t.Errorf("SubscribedCount() after unsubscribe = %d, want 2", got)
	}
}
