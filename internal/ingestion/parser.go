package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"PerpCore/internal/engine"
	"PerpCore/internal/market"
)

// Action kind tokens used in subjects and persisted rows.
const (
	KindDeposit     = "deposit"
	KindWithdrawal  = "withdrawal"
	KindSwap        = "swap"
	KindOrder       = "order"
	KindMarketAdmin = "market_admin"
)

// ActionKindFromSubject extracts the kind token from a subject of the
// form "perp.actions.{kind}.{market}".
func ActionKindFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != "perp" || parts[1] != "actions" {
		return "", fmt.Errorf("unexpected subject: %s", subject)
	}
	return parts[2], nil
}

// ParsedRequest is a validated request ready for the engine. Exactly
// one of the request pointers is set, matching Kind.
type ParsedRequest struct {
	ActionID    uuid.UUID
	Kind        string
	Deposit     *engine.DepositRequest
	Withdrawal  *engine.WithdrawalRequest
	Swap        *engine.SwapRequest
	Order       *engine.OrderRequest
	MarketAdmin *engine.MarketAdminRequest
}

// ParseRawRequest converts a RawRequest into a typed engine request.
// The ingestion shell validates and parses before anything reaches the
// single-threaded execution loop.
func ParseRawRequest(raw RawRequest) (*ParsedRequest, error) {
	kind, err := ActionKindFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindDeposit:
		return parseDeposit(raw.Data)
	case KindWithdrawal:
		return parseWithdrawal(raw.Data)
	case KindSwap:
		return parseSwap(raw.Data)
	case KindOrder:
		return parseOrder(raw.Data)
	case KindMarketAdmin:
		return parseMarketAdmin(raw.Data)
	default:
		return nil, fmt.Errorf("unknown action kind: %s", kind)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type priceJSON struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

type pricesJSON struct {
	Index priceJSON `json:"index"`
	Long  priceJSON `json:"long"`
	Short priceJSON `json:"short"`
}

func (p pricesJSON) toPrices() market.Prices {
	return market.Prices{
		IndexTokenPrice: market.Price{Min: p.Index.Min, Max: p.Index.Max},
		LongTokenPrice:  market.Price{Min: p.Long.Min, Max: p.Long.Max},
		ShortTokenPrice: market.Price{Min: p.Short.Min, Max: p.Short.Max},
	}
}

func toPricesMap(m map[string]pricesJSON) map[string]market.Prices {
	out := make(map[string]market.Prices, len(m))
	for token, p := range m {
		out[token] = p.toPrices()
	}
	return out
}

type depositJSON struct {
	ActionID         string     `json:"action_id"`
	MarketToken      string     `json:"market_token"`
	Payer            string     `json:"payer"`
	Receiver         string     `json:"receiver"`
	LongTokenAmount  uint64     `json:"long_token_amount"`
	ShortTokenAmount uint64     `json:"short_token_amount"`
	Prices           pricesJSON `json:"prices"`
}

func parseDeposit(data []byte) (*ParsedRequest, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse deposit: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	return &ParsedRequest{
		ActionID: actionID,
		Kind:     KindDeposit,
		Deposit: &engine.DepositRequest{
			MarketToken:      j.MarketToken,
			Payer:            j.Payer,
			Receiver:         j.Receiver,
			LongTokenAmount:  j.LongTokenAmount,
			ShortTokenAmount: j.ShortTokenAmount,
			Prices:           j.Prices.toPrices(),
		},
	}, nil
}

type withdrawalJSON struct {
	ActionID          string     `json:"action_id"`
	MarketToken       string     `json:"market_token"`
	Payer             string     `json:"payer"`
	Receiver          string     `json:"receiver"`
	MarketTokenAmount uint64     `json:"market_token_amount"`
	MinLongTokenOut   uint64     `json:"min_long_token_out"`
	MinShortTokenOut  uint64     `json:"min_short_token_out"`
	Prices            pricesJSON `json:"prices"`
}

func parseWithdrawal(data []byte) (*ParsedRequest, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse withdrawal: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	return &ParsedRequest{
		ActionID: actionID,
		Kind:     KindWithdrawal,
		Withdrawal: &engine.WithdrawalRequest{
			MarketToken:       j.MarketToken,
			Payer:             j.Payer,
			Receiver:          j.Receiver,
			MarketTokenAmount: j.MarketTokenAmount,
			MinLongTokenOut:   j.MinLongTokenOut,
			MinShortTokenOut:  j.MinShortTokenOut,
			Prices:            j.Prices.toPrices(),
		},
	}, nil
}

type swapJSON struct {
	ActionID        string                `json:"action_id"`
	Path            []string              `json:"path"`
	Payer           string                `json:"payer"`
	Receiver        string                `json:"receiver"`
	TokenIn         string                `json:"token_in"`
	AmountIn        uint64                `json:"amount_in"`
	MinOutputAmount uint64                `json:"min_output_amount"`
	Prices          map[string]pricesJSON `json:"prices"`
}

func parseSwap(data []byte) (*ParsedRequest, error) {
	var j swapJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse swap: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	return &ParsedRequest{
		ActionID: actionID,
		Kind:     KindSwap,
		Swap: &engine.SwapRequest{
			Path:            j.Path,
			Payer:           j.Payer,
			Receiver:        j.Receiver,
			TokenIn:         j.TokenIn,
			AmountIn:        j.AmountIn,
			MinOutputAmount: j.MinOutputAmount,
			Prices:          toPricesMap(j.Prices),
		},
	}, nil
}

type orderJSON struct {
	ActionID    string `json:"action_id"`
	Kind        string `json:"kind"`
	MarketToken string `json:"market_token"`
	Owner       string `json:"owner"`
	IsLong      bool   `json:"is_long"`

	SizeDeltaUsd           uint64   `json:"size_delta_usd"`
	InitialCollateralToken string   `json:"initial_collateral_token"`
	CollateralDeltaAmount  uint64   `json:"collateral_delta_amount"`
	SwapPath               []string `json:"swap_path"`

	TriggerPrice    uint64 `json:"trigger_price"`
	AcceptablePrice uint64 `json:"acceptable_price"`
	MinOutputAmount uint64 `json:"min_output_amount"`

	Prices      map[string]pricesJSON `json:"prices"`
	TimestampUs int64                 `json:"timestamp_us"`
}

func parseOrder(data []byte) (*ParsedRequest, error) {
	var j orderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse order: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	kind, ok := engine.OrderKindFromString(j.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown order kind: %s", j.Kind)
	}
	return &ParsedRequest{
		ActionID: actionID,
		Kind:     KindOrder,
		Order: &engine.OrderRequest{
			Kind:                   kind,
			MarketToken:            j.MarketToken,
			Owner:                  j.Owner,
			IsLong:                 j.IsLong,
			SizeDeltaUsd:           j.SizeDeltaUsd,
			InitialCollateralToken: j.InitialCollateralToken,
			CollateralDeltaAmount:  j.CollateralDeltaAmount,
			SwapPath:               j.SwapPath,
			TriggerPrice:           j.TriggerPrice,
			AcceptablePrice:        j.AcceptablePrice,
			MinOutputAmount:        j.MinOutputAmount,
			Prices:                 toPricesMap(j.Prices),
			Now:                    j.TimestampUs / 1_000_000,
		},
	}, nil
}

type marketAdminJSON struct {
	ActionID    string `json:"action_id"`
	Op          string `json:"op"`
	MarketToken string `json:"market_token"`
	Enabled     bool   `json:"enabled"`
	IsLong      bool   `json:"is_long"`

	// Config uses the same field names the snapshots persist.
	Config json.RawMessage `json:"config,omitempty"`
}

func parseMarketAdmin(data []byte) (*ParsedRequest, error) {
	var j marketAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse market_admin: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	req := &engine.MarketAdminRequest{
		Op:          engine.MarketAdminOp(j.Op),
		MarketToken: j.MarketToken,
		Enabled:     j.Enabled,
		IsLong:      j.IsLong,
	}
	if len(j.Config) > 0 {
		var cfg market.Config
		if err := json.Unmarshal(j.Config, &cfg); err != nil {
			return nil, fmt.Errorf("parse market_admin config: %w", err)
		}
		req.Config = &cfg
	}
	return &ParsedRequest{
		ActionID:    actionID,
		Kind:        KindMarketAdmin,
		MarketAdmin: req,
	}, nil
}
