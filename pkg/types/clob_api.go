package types

// OrderSubmissionResponse is the response from POST /order.
// The Success field is authoritative when present; when the upstream omits
// it, a non-empty OrderID or TransactionHashes list is treated as success.
type OrderSubmissionResponse struct {
	Success           bool     `json:"success"`
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderId"`
	TransactionHashes []string `json:"transactionsHashes"`
	Status            string   `json:"status"` // matched, live, delayed, unmatched
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`
}

// Succeeded applies the success-determination contract.
func (r *OrderSubmissionResponse) Succeeded() bool {
	if r.Success {
		return true
	}
	if r.ErrorMsg != "" {
		return false
	}
	return r.OrderID != "" || len(r.TransactionHashes) > 0
}

// SignedOrderJSON is a signed order in the wire format expected by the CLOB.
// Field types follow the API spec exactly: salt and signatureType are
// integers, amounts are raw 6-decimal strings.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`  // funder address
	Signer        string `json:"signer"` // EOA
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=email/social proxy, 2=browser proxy
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order with submission metadata.
// Owner is the L2 API key, not the maker address.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`
	OrderType string          `json:"orderType"`
}

// OrderQueryResponse is the response from GET /order (distinct shape from the
// submission response).
type OrderQueryResponse struct {
	OrderID    string   `json:"orderID"`
	Status     string   `json:"status"`
	TokenID    string   `json:"asset_id"`
	Price      float64  `json:"price,string"`
	Size       float64  `json:"original_size,string"`
	SizeFilled float64  `json:"size_matched,string"`
	Side       string   `json:"side"`
	OrderType  string   `json:"type"`
	MarketID   string   `json:"market"`
	Outcome    string   `json:"outcome"`
	CreatedAt  string   `json:"created_at"`
	Trades     []string `json:"associate_trades"`
}

// APICreds is the L2 credential triple derived from the L1 signing key.
type APICreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// BalanceAllowance is the response from GET /balance-allowance.
type BalanceAllowance struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// TickSizeResponse is the response from GET /tick-size.
type TickSizeResponse struct {
	MinimumTickSize float64 `json:"minimum_tick_size"`
}

// NegRiskResponse is the response from GET /neg-risk.
type NegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}
