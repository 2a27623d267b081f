package engine

import (
	"sort"
	"time"

	"PerpCore/internal/action"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"
	"PerpCore/internal/observability"
	"PerpCore/internal/revertible"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine holds the market set and executes actions against it one at a
// time. It is not safe for concurrent use; the caller serializes.
type Engine struct {
	log     zerolog.Logger
	metrics *observability.Metrics
	markets map[string]*market.Base
}

// New creates an engine with an empty market set.
func New(log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		log:     log,
		metrics: metrics,
		markets: make(map[string]*market.Base),
	}
}

// AddMarket registers a market under its market token.
func (e *Engine) AddMarket(m *market.Base) {
	e.markets[m.Meta().MarketToken] = m
}

// Market returns a registered market by its market token.
func (e *Engine) Market(marketToken string) (*market.Base, bool) {
	m, ok := e.markets[marketToken]
	return m, ok
}

// MarketTokens returns the registered market tokens in sorted order.
func (e *Engine) MarketTokens() []string {
	tokens := make([]string, 0, len(e.markets))
	for token := range e.markets {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// FinalSwapToken resolves the token a swap path ends in without
// touching any market state. The shell uses it to derive the
// collateral token of increase orders that swap before depositing.
func (e *Engine) FinalSwapToken(path []string, tokenIn string) (string, error) {
	token := tokenIn
	for _, marketToken := range path {
		m, ok := e.markets[marketToken]
		if !ok {
			return "", engineerr.InvalidArgument("unknown market " + marketToken)
		}
		next, ok := m.Meta().OppositeToken(token)
		if !ok {
			return "", engineerr.InvalidArgument("token " + token + " does not belong to market " + marketToken)
		}
		token = next
	}
	return token, nil
}

func (e *Engine) openMarket(marketToken string) (*market.Base, error) {
	m, ok := e.markets[marketToken]
	if !ok {
		return nil, engineerr.InvalidArgument("unknown market " + marketToken)
	}
	if !m.IsEnabled() {
		return nil, engineerr.ErrMarketDisabled
	}
	return m, nil
}

func (e *Engine) reject(kind string, err error) {
	if e.metrics != nil {
		e.metrics.ActionsRejected.WithLabelValues(kind, engineerr.Reason(err)).Inc()
	}
	e.log.Debug().Str("kind", kind).Str("reason", engineerr.Reason(err)).Err(err).Msg("action rejected")
}

func (e *Engine) committed(kind, marketToken string, start time.Time, plan *TransferPlan) {
	if e.metrics != nil {
		e.metrics.ActionsExecuted.WithLabelValues(kind, marketToken).Inc()
		e.metrics.ActionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		e.metrics.CommitsTotal.WithLabelValues(marketToken).Inc()
		e.metrics.PlanEntries.Observe(float64(len(plan.Transfers)))
		e.metrics.PlanMints.Add(float64(len(plan.Mints)))
		e.metrics.PlanBurns.Add(float64(len(plan.Burns)))
	}
}

// DepositRequest adds liquidity to one market.
type DepositRequest struct {
	MarketToken      string
	Payer            string
	Receiver         string
	LongTokenAmount  uint64
	ShortTokenAmount uint64
	Prices           market.Prices
}

// DepositResult is a committed deposit with its transfer plan.
type DepositResult struct {
	ID        uuid.UUID
	DepositID uint64
	Report    *action.DepositReport
	Plan      *TransferPlan
}

// ExecuteDeposit runs a deposit against a revertible overlay and
// commits on success. The plan moves the paid tokens into the market
// vault and mints market tokens to the receiver.
func (e *Engine) ExecuteDeposit(req DepositRequest) (*DepositResult, error) {
	start := time.Now()
	base, err := e.openMarket(req.MarketToken)
	if err != nil {
		e.reject("deposit", err)
		return nil, err
	}

	overlay := revertible.WrapLiquidity(base)
	depositID, err := overlay.NextDepositID()
	if err != nil {
		e.reject("deposit", err)
		return nil, err
	}
	meta := base.Meta()
	if req.LongTokenAmount > 0 {
		if err := overlay.RecordTransferredIn(meta.LongToken, req.LongTokenAmount); err != nil {
			e.reject("deposit", err)
			return nil, err
		}
	}
	if req.ShortTokenAmount > 0 {
		if err := overlay.RecordTransferredIn(meta.ShortToken, req.ShortTokenAmount); err != nil {
			e.reject("deposit", err)
			return nil, err
		}
	}

	report, err := action.Deposit(overlay, req.LongTokenAmount, req.ShortTokenAmount, req.Prices)
	if err != nil {
		e.reject("deposit", err)
		return nil, err
	}

	plan := newTransferPlan()
	plan.addOverlayTransfers(meta, overlay.Transfers(), req.Payer, req.Receiver)
	plan.addMint(req.Receiver, overlay.ToMint())
	overlay.Commit()

	e.committed("deposit", req.MarketToken, start, plan)
	e.log.Info().
		Str("market", req.MarketToken).
		Uint64("deposit_id", depositID).
		Uint64("minted", report.Minted).
		Msg("deposit committed")
	return &DepositResult{
		ID:        uuid.New(),
		DepositID: depositID,
		Report:    report,
		Plan:      plan,
	}, nil
}

// WithdrawalRequest burns market tokens against one market.
type WithdrawalRequest struct {
	MarketToken       string
	Payer             string
	Receiver          string
	MarketTokenAmount uint64
	MinLongTokenOut   uint64
	MinShortTokenOut  uint64
	Prices            market.Prices
}

// WithdrawalResult is a committed withdrawal with its transfer plan.
type WithdrawalResult struct {
	ID           uuid.UUID
	WithdrawalID uint64
	Report       *action.WithdrawalReport
	Plan         *TransferPlan
}

// ExecuteWithdrawal runs a withdrawal against a revertible overlay and
// commits on success. The plan burns the payer's market tokens and
// pays both sides of the pool out of the vault.
func (e *Engine) ExecuteWithdrawal(req WithdrawalRequest) (*WithdrawalResult, error) {
	start := time.Now()
	base, err := e.openMarket(req.MarketToken)
	if err != nil {
		e.reject("withdrawal", err)
		return nil, err
	}

	overlay := revertible.WrapLiquidity(base)
	withdrawalID, err := overlay.NextWithdrawalID()
	if err != nil {
		e.reject("withdrawal", err)
		return nil, err
	}

	report, err := action.Withdrawal(overlay, req.MarketTokenAmount, req.Prices)
	if err != nil {
		e.reject("withdrawal", err)
		return nil, err
	}
	if report.LongTokenOutput < req.MinLongTokenOut || report.ShortTokenOutput < req.MinShortTokenOut {
		e.reject("withdrawal", engineerr.ErrInsufficientOutputAmount)
		return nil, engineerr.ErrInsufficientOutputAmount
	}

	meta := base.Meta()
	if report.LongTokenOutput > 0 {
		if err := overlay.RecordTransferredOut(meta.LongToken, report.LongTokenOutput); err != nil {
			e.reject("withdrawal", err)
			return nil, err
		}
	}
	if report.ShortTokenOutput > 0 {
		if err := overlay.RecordTransferredOut(meta.ShortToken, report.ShortTokenOutput); err != nil {
			e.reject("withdrawal", err)
			return nil, err
		}
	}

	plan := newTransferPlan()
	plan.addOverlayTransfers(meta, overlay.Transfers(), req.Payer, req.Receiver)
	plan.addBurn(req.Payer, overlay.ToBurn())
	overlay.Commit()

	e.committed("withdrawal", req.MarketToken, start, plan)
	e.log.Info().
		Str("market", req.MarketToken).
		Uint64("withdrawal_id", withdrawalID).
		Uint64("burned", req.MarketTokenAmount).
		Msg("withdrawal committed")
	return &WithdrawalResult{
		ID:           uuid.New(),
		WithdrawalID: withdrawalID,
		Report:       report,
		Plan:         plan,
	}, nil
}
