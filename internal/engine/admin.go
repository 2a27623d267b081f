package engine

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"

	"github.com/google/uuid"
)

// MarketAdminOp selects a market administration operation.
type MarketAdminOp string

const (
	// AdminReplaceConfig swaps the market's whole tunable buffer.
	AdminReplaceConfig MarketAdminOp = "replace_config"
	// AdminSetEnabled flips whether the market accepts actions.
	AdminSetEnabled MarketAdminOp = "set_enabled"
	// AdminSetAdlEnabled flips the ADL flag for one side.
	AdminSetAdlEnabled MarketAdminOp = "set_adl_enabled"
)

// MarketAdminRequest is one administrative change to a market. Enabled
// carries the new flag value for the set operations; Config carries
// the replacement buffer for replace_config.
type MarketAdminRequest struct {
	Op          MarketAdminOp
	MarketToken string
	Enabled     bool
	IsLong      bool
	Config      *market.Config
}

// MarketAdminReport echoes the applied change.
type MarketAdminReport struct {
	Op          MarketAdminOp `json:"op"`
	MarketToken string        `json:"market_token"`
	Enabled     bool          `json:"enabled"`
	IsLong      bool          `json:"is_long"`
}

// MarketAdminResult is a committed admin change. Admin operations move
// no tokens, so there is no transfer plan.
type MarketAdminResult struct {
	ID     uuid.UUID
	Report *MarketAdminReport
}

// ExecuteMarketAdmin applies one admin change. The market-disabled
// check deliberately does not apply here: disabling is reversible only
// if admin operations still reach a disabled market.
func (e *Engine) ExecuteMarketAdmin(req MarketAdminRequest) (*MarketAdminResult, error) {
	kind := "market_admin"
	m, ok := e.markets[req.MarketToken]
	if !ok {
		err := engineerr.InvalidArgument("unknown market " + req.MarketToken)
		e.reject(kind, err)
		return nil, err
	}

	switch req.Op {
	case AdminReplaceConfig:
		if req.Config == nil {
			err := engineerr.InvalidArgument("replace_config without a config")
			e.reject(kind, err)
			return nil, err
		}
		m.ReplaceConfig(*req.Config)
	case AdminSetEnabled:
		m.SetEnabled(req.Enabled)
	case AdminSetAdlEnabled:
		m.SetAdlEnabled(req.IsLong, req.Enabled)
	default:
		err := engineerr.InvalidArgument("unknown admin op " + string(req.Op))
		e.reject(kind, err)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.ActionsExecuted.WithLabelValues(kind, req.MarketToken).Inc()
	}
	e.log.Info().
		Str("market", req.MarketToken).
		Str("op", string(req.Op)).
		Bool("enabled", req.Enabled).
		Bool("is_long", req.IsLong).
		Msg("market admin applied")
	return &MarketAdminResult{
		ID: uuid.New(),
		Report: &MarketAdminReport{
			Op:          req.Op,
			MarketToken: req.MarketToken,
			Enabled:     req.Enabled,
			IsLong:      req.IsLong,
		},
	}, nil
}
