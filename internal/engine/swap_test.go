package engine_test

import (
	"errors"
	"testing"

	"PerpCore/internal/engine"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"
)

// twoMarketEngine seeds a WBTC/USDG and a WETH/USDG market so swaps
// can route between them over the shared USDG side.
func twoMarketEngine(t *testing.T) (*engine.Engine, *market.Base, *market.Base, map[string]market.Prices) {
	t.Helper()
	e := newEngine()
	btc := market.New(btcMeta(), testConfig())
	eth := market.New(ethMeta(), testConfig())
	e.AddMarket(btc)
	e.AddMarket(eth)

	prices := map[string]market.Prices{
		"GM-WBTC-USDG": testPrices(120, 120, 1),
		"GM-WETH-USDG": testPrices(100, 100, 1),
	}

	mustExecuteDeposit(t, e, engine.DepositRequest{
		MarketToken:      "GM-WBTC-USDG",
		Payer:            "lp",
		Receiver:         "lp",
		LongTokenAmount:  1_000_000_000,
		ShortTokenAmount: 120_000_000_000,
		Prices:           prices["GM-WBTC-USDG"],
	})
	mustExecuteDeposit(t, e, engine.DepositRequest{
		MarketToken:      "GM-WETH-USDG",
		Payer:            "lp",
		Receiver:         "lp",
		LongTokenAmount:  1_000_000_000,
		ShortTokenAmount: 100_000_000_000,
		Prices:           prices["GM-WETH-USDG"],
	})
	return e, btc, eth, prices
}

func TestSwapPathThreadsHops(t *testing.T) {
	e, btc, eth, prices := twoMarketEngine(t)

	btcBalBefore := btc.State().LongTokenBalance
	usdgABefore := btc.State().ShortTokenBalance
	usdgBBefore := eth.State().ShortTokenBalance
	wethBefore := eth.State().LongTokenBalance

	const amountIn = 1_000_000
	res, err := e.ExecuteSwap(engine.SwapRequest{
		Path:     []string{"GM-WBTC-USDG", "GM-WETH-USDG"},
		Payer:    "alice",
		Receiver: "alice",
		TokenIn:  "WBTC",
		AmountIn: amountIn,
		Prices:   prices,
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if res.TokenOut != "WETH" {
		t.Fatalf("token out = %s, want WETH", res.TokenOut)
	}
	if res.AmountOut == 0 {
		t.Fatal("swap produced no output")
	}
	if len(res.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(res.Reports))
	}
	mid := res.Reports[0].TokenOutAmount
	if res.Reports[1].TokenOutAmount != res.AmountOut {
		t.Fatalf("last hop out = %d, result = %d", res.Reports[1].TokenOutAmount, res.AmountOut)
	}

	// One plan entry per physical movement: in, hop, out.
	if len(res.Plan.Transfers) != 3 {
		t.Fatalf("plan transfers = %d, want 3", len(res.Plan.Transfers))
	}
	vaultA := engine.VaultBank(btc.Meta())
	vaultB := engine.VaultBank(eth.Meta())
	want := []engine.TransferEntry{
		{Token: "WBTC", FromBank: "alice", ToBank: vaultA, Amount: amountIn},
		{Token: "USDG", FromBank: vaultA, ToBank: vaultB, Amount: mid},
		{Token: "WETH", FromBank: vaultB, ToBank: "alice", Amount: res.AmountOut},
	}
	for i, entry := range want {
		if res.Plan.Transfers[i] != entry {
			t.Fatalf("plan[%d] = %+v, want %+v", i, res.Plan.Transfers[i], entry)
		}
	}

	// Bank balances track the plan.
	if got := btc.State().LongTokenBalance; got != btcBalBefore+amountIn {
		t.Fatalf("btc vault WBTC = %d, want %d", got, btcBalBefore+amountIn)
	}
	if got := btc.State().ShortTokenBalance; got != usdgABefore-mid {
		t.Fatalf("btc vault USDG = %d, want %d", got, usdgABefore-mid)
	}
	if got := eth.State().ShortTokenBalance; got != usdgBBefore+mid {
		t.Fatalf("eth vault USDG = %d, want %d", got, usdgBBefore+mid)
	}
	if got := eth.State().LongTokenBalance; got != wethBefore-res.AmountOut {
		t.Fatalf("eth vault WETH = %d, want %d", got, wethBefore-res.AmountOut)
	}
}

func TestSwapPathMinOutputAbortsEveryHop(t *testing.T) {
	e, btc, eth, prices := twoMarketEngine(t)

	btcState := btc.State()
	ethState := eth.State()

	_, err := e.ExecuteSwap(engine.SwapRequest{
		Path:            []string{"GM-WBTC-USDG", "GM-WETH-USDG"},
		Payer:           "alice",
		Receiver:        "alice",
		TokenIn:         "WBTC",
		AmountIn:        1_000_000,
		MinOutputAmount: 1 << 60,
		Prices:          prices,
	})
	if !errors.Is(err, engineerr.ErrInsufficientOutputAmount) {
		t.Fatalf("err = %v, want insufficient output", err)
	}
	if btc.State() != btcState {
		t.Fatal("first hop market changed on aborted swap")
	}
	if eth.State() != ethState {
		t.Fatal("second hop market changed on aborted swap")
	}
}

func TestSwapPathRejectsDuplicateMarket(t *testing.T) {
	e, _, _, prices := twoMarketEngine(t)

	_, err := e.ExecuteSwap(engine.SwapRequest{
		Path:     []string{"GM-WBTC-USDG", "GM-WBTC-USDG"},
		Payer:    "alice",
		Receiver: "alice",
		TokenIn:  "WBTC",
		AmountIn: 1_000_000,
		Prices:   prices,
	})
	if !errors.Is(err, engineerr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestSwapUnknownTokenRejected(t *testing.T) {
	e, _, _, prices := twoMarketEngine(t)

	_, err := e.ExecuteSwap(engine.SwapRequest{
		Path:     []string{"GM-WBTC-USDG"},
		Payer:    "alice",
		Receiver: "alice",
		TokenIn:  "WETH",
		AmountIn: 1_000_000,
		Prices:   prices,
	})
	if !errors.Is(err, engineerr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}
