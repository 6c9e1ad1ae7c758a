package types

import (
	"time"

	json "github.com/goccy/go-json"
)

// Market represents a Polymarket binary market from the Gamma API.
// A market is identified by its ConditionID and carries exactly two outcome
// tokens (YES and NO) whose asset IDs never change over the market lifetime.
type Market struct {
	ID          string    `json:"id"`
	ConditionID string    `json:"conditionId"`
	Question    string    `json:"question"`
	Slug        string    `json:"slug"`
	Active      bool      `json:"active"`
	Closed      bool      `json:"closed"`
	NegRisk     bool      `json:"negRisk"`
	Volume24h   float64   `json:"volume24hr"`
	EndDate     time.Time `json:"endDate"`
	Tokens      []Token   `json:"-"` // populated from outcomes + clobTokenIds

	// Gamma returns these as JSON-encoded strings, not arrays.
	Outcomes   string `json:"outcomes"`
	ClobTokens string `json:"clobTokenIds"`
}

// Token represents a market outcome token.
type Token struct {
	AssetID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price,omitempty"`
}

// UnmarshalJSON parses the Gamma payload and expands the stringified
// outcomes/clobTokenIds pair into Tokens.
func (m *Market) UnmarshalJSON(data []byte) error {
	type alias Market
	if err := json.Unmarshal(data, (*alias)(m)); err != nil {
		return err
	}

	if m.Outcomes != "" && m.ClobTokens != "" {
		var outcomes, assetIDs []string
		if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err == nil {
			if err := json.Unmarshal([]byte(m.ClobTokens), &assetIDs); err == nil {
				m.Tokens = make([]Token, 0, len(outcomes))
				for i, outcome := range outcomes {
					if i < len(assetIDs) {
						m.Tokens = append(m.Tokens, Token{AssetID: assetIDs[i], Outcome: outcome})
					}
				}
			}
		}
	}

	return nil
}

// YesToken returns the YES outcome token, or nil when absent.
func (m *Market) YesToken() *Token { return m.tokenByOutcome("Yes", "YES") }

// NoToken returns the NO outcome token, or nil when absent.
func (m *Market) NoToken() *Token { return m.tokenByOutcome("No", "NO") }

func (m *Market) tokenByOutcome(names ...string) *Token {
	for i := range m.Tokens {
		for _, n := range names {
			if m.Tokens[i].Outcome == n {
				return &m.Tokens[i]
			}
		}
	}
	return nil
}

// Binary reports whether the market carries the YES/NO pair with distinct
// asset IDs. Non-binary rows from the listing endpoint are skipped upstream.
func (m *Market) Binary() bool {
	yes, no := m.YesToken(), m.NoToken()
	return yes != nil && no != nil && yes.AssetID != no.AssetID
}

// MarketPair is the immutable YES/NO asset pairing used by subscriptions and
// the arbitrage engine.
type MarketPair struct {
	ConditionID string
	Slug        string
	Question    string
	YesAssetID  string
	NoAssetID   string
	NegRisk     bool
}

// PairFromMarket extracts the MarketPair, returning ok=false for non-binary
// listings.
func PairFromMarket(m *Market) (MarketPair, bool) {
	if !m.Binary() {
		return MarketPair{}, false
	}
	return MarketPair{
		ConditionID: m.ConditionID,
		Slug:        m.Slug,
		Question:    m.Question,
		YesAssetID:  m.YesToken().AssetID,
		NoAssetID:   m.NoToken().AssetID,
		NegRisk:     m.NegRisk,
	}, true
}

// PriceHistoryPoint is one sample from the price-history endpoint.
type PriceHistoryPoint struct {
	T int64   `json:"t"` // unix seconds
	P float64 `json:"p"`
}
