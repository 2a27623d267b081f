package query

import (
	"encoding/json"
	"time"
)

// ActionRecord is one row of the action log for API queries.
type ActionRecord struct {
	ActionID    string          `json:"action_id"`
	PlanID      string          `json:"plan_id,omitempty"`
	Kind        string          `json:"kind"`
	MarketToken string          `json:"market_token"`
	Owner       string          `json:"owner"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Report      json.RawMessage `json:"report,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// TransferRecord is one entry of a persisted transfer plan.
type TransferRecord struct {
	PlanID    string `json:"plan_id"`
	EntryIdx  int32  `json:"entry_idx"`
	EntryType string `json:"entry_type"`
	Token     string `json:"token"`
	FromBank  string `json:"from_bank,omitempty"`
	ToBank    string `json:"to_bank,omitempty"`
	Amount    int64  `json:"amount"`
}

// FundingPoint is one projected funding rate observation.
type FundingPoint struct {
	MarketToken            string    `json:"market_token"`
	Sequence               int64     `json:"sequence"`
	FundingFactorPerSecond int64     `json:"funding_factor_per_second"`
	Timestamp              time.Time `json:"timestamp"`
}

// TokenVolume is the gross transferred amount of one token.
type TokenVolume struct {
	Token  string `json:"token"`
	Volume int64  `json:"volume"`
}
