package types

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestActivityEvent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		checkFunc func(*testing.T, *ActivityEvent)
	}{
		{
			name: "camel_case_fields",
			input: `{
				"type": "TRADE",
				"side": "BUY",
				"size": 100,
				"price": 0.42,
				"usdcSize": 42,
				"conditionId": "0xabc",
				"transactionHash": "0xdeadbeef",
				"timestamp": 1700000000
			}`,
			checkFunc: func(t *testing.T, e *ActivityEvent) {
				if e.UsdcSize != 42 {
					t.Errorf("UsdcSize = %v, want 42", e.UsdcSize)
				}
				if e.TransactionHash != "0xdeadbeef" {
					t.Errorf("TransactionHash = %q, want 0xdeadbeef", e.TransactionHash)
				}
				if e.ConditionID != "0xabc" {
					t.Errorf("ConditionID = %q, want 0xabc", e.ConditionID)
				}
			},
		},
		{
			name: "snake_case_fallback",
			input: `{
				"type": "trade",
				"side": "sell",
				"size": 10,
				"price": 0.9,
				"usdc_size": 9,
				"condition_id": "0xdef",
				"transaction_hash": "0xfeed"
			}`,
			checkFunc: func(t *testing.T, e *ActivityEvent) {
				if e.UsdcSize != 9 {
					t.Errorf("UsdcSize = %v, want 9", e.UsdcSize)
				}
				if e.TransactionHash != "0xfeed" {
					t.Errorf("TransactionHash = %q, want 0xfeed", e.TransactionHash)
				}
				if e.ConditionID != "0xdef" {
					t.Errorf("ConditionID = %q, want 0xdef", e.ConditionID)
				}
				if e.Type != ActivityTrade {
					t.Errorf("Type = %q, want %q (normalized upper)", e.Type, ActivityTrade)
				}
				if e.Side != SideSell {
					t.Errorf("Side = %q, want %q (normalized upper)", e.Side, SideSell)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e ActivityEvent
			if err := json.Unmarshal([]byte(tt.input), &e); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			tt.checkFunc(t, &e)
		})
	}
}

func TestActivityEvent_Fingerprint(t *testing.T) {
	withHash := ActivityEvent{TransactionHash: "0xabc", Timestamp: 1, ConditionID: "c", Asset: "a"}
	if got := withHash.Fingerprint(); got != "0xabc" {
		t.Errorf("Fingerprint() = %q, want transaction hash", got)
	}

	e1 := ActivityEvent{Timestamp: 1700000000, ConditionID: "0xc", Asset: "123", Side: "BUY", Size: 10, Price: 0.5}
	e2 := ActivityEvent{Timestamp: 1700000000, ConditionID: "0xc", Asset: "123", Side: "BUY", Size: 10, Price: 0.5}
	if e1.Fingerprint() != e2.Fingerprint() {
		t.Error("identical events must yield identical synthetic fingerprints")
	}

	e3 := e2
	e3.Size = 11
	if e1.Fingerprint() == e3.Fingerprint() {
		t.Error("differing events must yield differing fingerprints")
	}
}

func TestOrderStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderOpen, true},
		{OrderPending, OrderFilled, true},
		{OrderOpen, OrderFilled, true},
		{OrderOpen, OrderCancelled, true},
		{OrderOpen, OrderPending, false},
		{OrderFilled, OrderOpen, false},
		{OrderCancelled, OrderFilled, false},
		{OrderFailed, OrderFailed, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderSubmissionResponse_Succeeded(t *testing.T) {
	tests := []struct {
		name string
		resp OrderSubmissionResponse
		want bool
	}{
		{"explicit_success", OrderSubmissionResponse{Success: true}, true},
		{"explicit_error", OrderSubmissionResponse{ErrorMsg: "bad order"}, false},
		{"order_id_only", OrderSubmissionResponse{OrderID: "0x1"}, true},
		{"tx_hashes_only", OrderSubmissionResponse{TransactionHashes: []string{"0x2"}}, true},
		{"nothing", OrderSubmissionResponse{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Succeeded(); got != tt.want {
				t.Errorf("Succeeded() = %v, want %v", got, tt.want)
			}
		})
	}
}
