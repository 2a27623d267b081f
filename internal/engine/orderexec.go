package engine

import (
	"time"

	"PerpCore/internal/action"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"
	"PerpCore/internal/position"
	"PerpCore/internal/revertible"

	"github.com/google/uuid"
)

// OrderRequest is one order against a market. For swap kinds the path
// carries the whole route; for position kinds it carries the
// collateral-in leg (increase) or the output leg (decrease).
type OrderRequest struct {
	Kind        OrderKind
	MarketToken string
	Owner       string
	IsLong      bool

	SizeDeltaUsd           uint64
	InitialCollateralToken string
	CollateralDeltaAmount  uint64
	SwapPath               []string

	TriggerPrice    uint64
	AcceptablePrice uint64
	MinOutputAmount uint64

	Prices map[string]market.Prices
	Now    int64
}

// OrderResult is a committed order with its transfer plan. Exactly one
// of Increase, Decrease and Swaps is populated, matching the kind.
type OrderResult struct {
	ID      uuid.UUID
	OrderID uint64

	Increase *action.IncreasePositionReport
	Decrease *action.DecreasePositionReport
	Swaps    []*action.SwapReport

	OutputToken  string
	OutputAmount uint64
	ShouldRemove bool

	Plan *TransferPlan
}

// ExecuteOrder validates and runs one order. Position orders mutate
// the supplied position; on any error the position is restored and no
// market state changes.
func (e *Engine) ExecuteOrder(req OrderRequest, pos *position.Position) (*OrderResult, error) {
	start := time.Now()
	kind := req.Kind.String()
	if int(req.Kind) >= NumOrderKinds {
		err := engineerr.InvalidArgument("unknown order kind")
		e.reject(kind, err)
		return nil, err
	}

	if req.Kind.IsSwap() {
		if req.TriggerPrice != 0 {
			e.reject(kind, engineerr.ErrInvalidTriggerPrice)
			return nil, engineerr.ErrInvalidTriggerPrice
		}
		res, err := e.runSwap(kind, SwapRequest{
			Path:            req.SwapPath,
			Payer:           req.Owner,
			Receiver:        req.Owner,
			TokenIn:         req.InitialCollateralToken,
			AmountIn:        req.CollateralDeltaAmount,
			MinOutputAmount: req.MinOutputAmount,
			Prices:          req.Prices,
		})
		if err != nil {
			return nil, err
		}
		return &OrderResult{
			ID:           res.ID,
			Swaps:        res.Reports,
			OutputToken:  res.TokenOut,
			OutputAmount: res.AmountOut,
			Plan:         res.Plan,
		}, nil
	}

	if pos == nil {
		err := engineerr.InvalidArgument("position order without a position")
		e.reject(kind, err)
		return nil, err
	}
	if pos.MarketToken != req.MarketToken {
		err := engineerr.InvalidArgument("position belongs to another market")
		e.reject(kind, err)
		return nil, err
	}
	if pos.IsLong != req.IsLong {
		err := engineerr.InvalidArgument("order side does not match the position")
		e.reject(kind, err)
		return nil, err
	}
	prices, ok := req.Prices[req.MarketToken]
	if !ok {
		err := engineerr.InvalidArgument("missing prices for market " + req.MarketToken)
		e.reject(kind, err)
		return nil, err
	}
	if err := ValidateTriggerPrice(prices.IndexTokenPrice, req.Kind, req.IsLong, req.TriggerPrice); err != nil {
		e.reject(kind, err)
		return nil, err
	}
	base, err := e.openMarket(req.MarketToken)
	if err != nil {
		e.reject(kind, err)
		return nil, err
	}

	// The kernels write position fields in place; restore on any
	// failure so an aborted order leaves no trace.
	saved := *pos
	var res *OrderResult
	if req.Kind.IsIncrease() {
		res, err = e.runIncreaseOrder(base, pos, req, prices)
	} else {
		res, err = e.runDecreaseOrder(base, pos, req, prices)
	}
	if err != nil {
		*pos = saved
		e.reject(kind, err)
		return nil, err
	}

	if res.Increase != nil {
		e.recordAccrual(req.MarketToken, res.Increase.Borrowing, res.Increase.Funding, res.Increase.Distribution)
	}
	if res.Decrease != nil {
		e.recordAccrual(req.MarketToken, res.Decrease.Borrowing, res.Decrease.Funding, res.Decrease.Distribution)
	}
	e.committed(kind, req.MarketToken, start, res.Plan)
	e.log.Info().
		Str("kind", kind).
		Str("market", req.MarketToken).
		Str("owner", req.Owner).
		Bool("is_long", req.IsLong).
		Uint64("order_id", res.OrderID).
		Uint64("size_delta_usd", req.SizeDeltaUsd).
		Msg("order committed")
	return res, nil
}

func (e *Engine) runIncreaseOrder(base *market.Base, pos *position.Position, req OrderRequest, prices market.Prices) (*OrderResult, error) {
	collateralToken := req.InitialCollateralToken
	if collateralToken == "" {
		collateralToken = pos.CollateralToken
	}
	amount := req.CollateralDeltaAmount

	var hops []swapHop
	if len(req.SwapPath) > 0 && amount > 0 {
		if err := pathAvoids(req.SwapPath, req.MarketToken); err != nil {
			return nil, err
		}
		var err error
		hops, collateralToken, amount, err = e.swapAlongPath(req.SwapPath, collateralToken, amount, req.Prices)
		if err != nil {
			return nil, err
		}
	}
	if collateralToken != pos.CollateralToken {
		return nil, engineerr.InvalidArgument("collateral leg does not end in the position collateral token")
	}

	overlay := revertible.Wrap(base)
	orderID, err := overlay.NextOrderID()
	if err != nil {
		return nil, err
	}
	if amount > 0 {
		if err := overlay.RecordTransferredIn(collateralToken, amount); err != nil {
			return nil, err
		}
	}
	report, err := action.IncreasePosition(overlay, pos, prices, action.IncreasePositionParams{
		CollateralDeltaAmount: amount,
		SizeDeltaUsd:          req.SizeDeltaUsd,
		AcceptablePrice:       req.AcceptablePrice,
	}, req.Now)
	if err != nil {
		return nil, err
	}

	meta := base.Meta()
	plan := newTransferPlan()
	if len(hops) > 0 {
		// The last hop's outbound entry already moves the collateral
		// into the target vault.
		plan.addSwapHops(hops, req.Owner, VaultBank(meta))
	} else {
		plan.addOverlayTransfers(meta, overlay.Transfers(), req.Owner, req.Owner)
	}

	for _, hop := range hops {
		hop.overlay.Commit()
	}
	overlay.Commit()

	return &OrderResult{
		ID:       uuid.New(),
		OrderID:  orderID,
		Increase: report,
		Plan:     plan,
	}, nil
}

func (e *Engine) runDecreaseOrder(base *market.Base, pos *position.Position, req OrderRequest, prices market.Prices) (*OrderResult, error) {
	cut := action.PositionCut{Kind: action.CutNone}
	switch req.Kind {
	case OrderLiquidation:
		cut.Kind = action.CutLiquidate
	case OrderAutoDeleveraging:
		cut = action.PositionCut{Kind: action.CutAdl, SizeDeltaUsd: req.SizeDeltaUsd}
	}

	overlay := revertible.Wrap(base)
	orderID, err := overlay.NextOrderID()
	if err != nil {
		return nil, err
	}
	report, err := action.DecreasePosition(overlay, pos, prices, action.DecreasePositionParams{
		CollateralWithdrawalAmount: req.CollateralDeltaAmount,
		SizeDeltaUsd:               req.SizeDeltaUsd,
		AcceptablePrice:            req.AcceptablePrice,
		Cut:                        cut,
	}, req.Now)
	if err != nil {
		return nil, err
	}
	if req.Kind == OrderAutoDeleveraging {
		if err := overlay.SetClock(market.ClockAdl(req.IsLong), req.Now); err != nil {
			return nil, err
		}
	}

	meta := base.Meta()
	outputToken := meta.Token(report.IsOutputTokenLong)
	secondaryToken := meta.Token(!report.IsOutputTokenLong)
	if report.OutputAmount > 0 {
		if err := overlay.RecordTransferredOut(outputToken, report.OutputAmount); err != nil {
			return nil, err
		}
	}
	if report.SecondaryOutputAmount > 0 {
		if err := overlay.RecordTransferredOut(secondaryToken, report.SecondaryOutputAmount); err != nil {
			return nil, err
		}
	}

	// The output leg may swap through further markets; the secondary
	// output always pays straight to the owner.
	var hops []swapHop
	finalToken, finalAmount := outputToken, report.OutputAmount
	if len(req.SwapPath) > 0 && report.OutputAmount > 0 {
		if err := pathAvoids(req.SwapPath, req.MarketToken); err != nil {
			return nil, err
		}
		hops, finalToken, finalAmount, err = e.swapAlongPath(req.SwapPath, outputToken, report.OutputAmount, req.Prices)
		if err != nil {
			return nil, err
		}
	}
	if finalAmount < req.MinOutputAmount {
		return nil, engineerr.ErrInsufficientOutputAmount
	}

	vault := VaultBank(meta)
	plan := newTransferPlan()
	if report.OutputAmount > 0 && len(hops) == 0 {
		plan.Transfers = append(plan.Transfers, TransferEntry{
			Token:    outputToken,
			FromBank: vault,
			ToBank:   req.Owner,
			Amount:   report.OutputAmount,
		})
	}
	if report.SecondaryOutputAmount > 0 {
		plan.Transfers = append(plan.Transfers, TransferEntry{
			Token:    secondaryToken,
			FromBank: vault,
			ToBank:   req.Owner,
			Amount:   report.SecondaryOutputAmount,
		})
	}
	plan.addSwapHops(hops, vault, req.Owner)

	overlay.Commit()
	for _, hop := range hops {
		hop.overlay.Commit()
	}
	e.countForcedClose(req)

	return &OrderResult{
		ID:           uuid.New(),
		OrderID:      orderID,
		Decrease:     report,
		OutputToken:  finalToken,
		OutputAmount: finalAmount,
		ShouldRemove: report.ShouldRemove,
		Plan:         plan,
	}, nil
}

func (e *Engine) recordAccrual(marketToken string, b *action.UpdateBorrowingReport, f *action.UpdateFundingReport, d *action.DistributePositionImpactReport) {
	if e.metrics == nil {
		return
	}
	if b != nil && b.DurationInSeconds > 0 {
		e.metrics.BorrowingUpdates.WithLabelValues(marketToken).Inc()
	}
	if f != nil {
		if f.DurationInSeconds > 0 {
			e.metrics.FundingUpdates.WithLabelValues(marketToken).Inc()
		}
		e.metrics.FundingFactorPerSecond.WithLabelValues(marketToken).Set(float64(f.NextFundingFactorPerSecond))
	}
	if d != nil && d.DistributionAmount > 0 {
		e.metrics.ImpactDistributions.WithLabelValues(marketToken).Inc()
	}
}

func (e *Engine) countForcedClose(req OrderRequest) {
	if e.metrics == nil {
		return
	}
	side := "short"
	if req.IsLong {
		side = "long"
	}
	switch req.Kind {
	case OrderLiquidation:
		e.metrics.LiquidationsExecuted.WithLabelValues(req.MarketToken, side).Inc()
	case OrderAutoDeleveraging:
		e.metrics.AdlExecuted.WithLabelValues(req.MarketToken, side).Inc()
	}
}
