package engine

import (
	"time"

	"PerpCore/internal/action"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"
	"PerpCore/internal/revertible"

	"github.com/google/uuid"
)

// swapHop is one executed swap on a path, still uncommitted.
type swapHop struct {
	meta    market.Meta
	overlay *revertible.Market
	report  *action.SwapReport
}

// swapAlongPath runs one swap kernel per market on the path, threading
// each hop's output into the next. Overlays stay uncommitted; the
// caller commits all iff the whole action succeeds.
func (e *Engine) swapAlongPath(path []string, tokenIn string, amountIn uint64, prices map[string]market.Prices) ([]swapHop, string, uint64, error) {
	token, amount := tokenIn, amountIn
	hops := make([]swapHop, 0, len(path))
	seen := make(map[string]bool, len(path))
	for _, mt := range path {
		if seen[mt] {
			return nil, "", 0, engineerr.InvalidArgument("duplicate market on swap path")
		}
		seen[mt] = true

		base, err := e.openMarket(mt)
		if err != nil {
			return nil, "", 0, err
		}
		pr, ok := prices[mt]
		if !ok {
			return nil, "", 0, engineerr.InvalidArgument("missing prices for market " + mt)
		}
		meta := base.Meta()
		isLong, ok := meta.IsLongToken(token)
		if !ok {
			return nil, "", 0, engineerr.InvalidArgument("token " + token + " is not traded on market " + mt)
		}
		out, _ := meta.OppositeToken(token)

		overlay := revertible.Wrap(base)
		if err := overlay.RecordTransferredIn(token, amount); err != nil {
			return nil, "", 0, err
		}
		report, err := action.Swap(overlay, isLong, amount, pr)
		if err != nil {
			return nil, "", 0, err
		}
		if err := overlay.RecordTransferredOut(out, report.TokenOutAmount); err != nil {
			return nil, "", 0, err
		}

		hops = append(hops, swapHop{meta: meta, overlay: overlay, report: report})
		token, amount = out, report.TokenOutAmount
	}
	return hops, token, amount, nil
}

// addSwapHops emits the plan entries for a committed path: the first
// hop pulls from the payer, every hop pays forward to the next vault,
// the last pays the receiver. A hop's inbound movement is the previous
// hop's outbound entry, so only the first hop emits one.
func (p *TransferPlan) addSwapHops(hops []swapHop, payer, receiver string) {
	for i, hop := range hops {
		vault := VaultBank(hop.meta)
		to := receiver
		if i < len(hops)-1 {
			to = VaultBank(hops[i+1].meta)
		}
		for _, t := range hop.overlay.Transfers() {
			if t.Amount > 0 {
				if i == 0 {
					p.Transfers = append(p.Transfers, TransferEntry{
						Token:    t.Token,
						FromBank: payer,
						ToBank:   vault,
						Amount:   uint64(t.Amount),
					})
				}
				continue
			}
			if t.Amount < 0 {
				p.Transfers = append(p.Transfers, TransferEntry{
					Token:    t.Token,
					FromBank: vault,
					ToBank:   to,
					Amount:   uint64(-t.Amount),
				})
			}
		}
	}
}

// pathAvoids rejects a swap path that routes through the given market.
// A position order already holds an overlay on it; a second one would
// clobber the first on commit.
func pathAvoids(path []string, marketToken string) error {
	for _, mt := range path {
		if mt == marketToken {
			return engineerr.InvalidArgument("swap path routes through the order market")
		}
	}
	return nil
}

// SwapRequest swaps a token along a path of markets.
type SwapRequest struct {
	Path            []string
	Payer           string
	Receiver        string
	TokenIn         string
	AmountIn        uint64
	MinOutputAmount uint64
	Prices          map[string]market.Prices
}

// SwapResult is a committed swap with its transfer plan.
type SwapResult struct {
	ID        uuid.UUID
	TokenOut  string
	AmountOut uint64
	Reports   []*action.SwapReport
	Plan      *TransferPlan
}

// ExecuteSwap runs a swap against one overlay per market on the path
// and commits all of them iff every hop succeeds.
func (e *Engine) ExecuteSwap(req SwapRequest) (*SwapResult, error) {
	return e.runSwap("swap", req)
}

func (e *Engine) runSwap(kind string, req SwapRequest) (*SwapResult, error) {
	start := time.Now()
	if len(req.Path) == 0 {
		err := engineerr.InvalidArgument("empty swap path")
		e.reject(kind, err)
		return nil, err
	}

	hops, tokenOut, amountOut, err := e.swapAlongPath(req.Path, req.TokenIn, req.AmountIn, req.Prices)
	if err != nil {
		e.reject(kind, err)
		return nil, err
	}
	if amountOut < req.MinOutputAmount {
		e.reject(kind, engineerr.ErrInsufficientOutputAmount)
		return nil, engineerr.ErrInsufficientOutputAmount
	}

	plan := newTransferPlan()
	plan.addSwapHops(hops, req.Payer, req.Receiver)
	reports := make([]*action.SwapReport, len(hops))
	for i, hop := range hops {
		hop.overlay.Commit()
		reports[i] = hop.report
	}

	if e.metrics != nil {
		e.metrics.SwapPathHops.Observe(float64(len(hops)))
	}
	e.committed(kind, req.Path[len(req.Path)-1], start, plan)
	e.log.Info().
		Str("token_in", req.TokenIn).
		Uint64("amount_in", req.AmountIn).
		Str("token_out", tokenOut).
		Uint64("amount_out", amountOut).
		Int("hops", len(hops)).
		Msg("swap committed")
	return &SwapResult{
		ID:        uuid.New(),
		TokenOut:  tokenOut,
		AmountOut: amountOut,
		Reports:   reports,
		Plan:      plan,
	}, nil
}
