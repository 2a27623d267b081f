package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PerpCore/internal/engine"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/ingestion"
	"PerpCore/internal/ledger"
	"PerpCore/internal/observability"
	"PerpCore/internal/persistence"
	"PerpCore/internal/state"

	"github.com/rs/zerolog"
)

// Loop is the single-threaded action processor. It drains the request
// channel, runs each action against the engine, applies the resulting
// transfer plan to the bank ledger and hands the outcome to the
// persistence and report channels. Nothing else touches the engine,
// the position store or the bank ledger while it runs.
type Loop struct {
	sequence    int64
	hasher      *StateHasher
	engine      *engine.Engine
	positions   *state.PositionStore
	banks       *ledger.BalanceTracker
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	log         zerolog.Logger

	requestChan    <-chan ingestion.RawRequest
	persistChan    chan<- persistence.Record
	reportChan     chan<- ingestion.Report
	projectionChan chan<- ProjectionUpdate
}

// ProjectionUpdate is the per-action feed for projection workers. Sent
// non-blocking; a dropped update is rebuilt from the action log.
type ProjectionUpdate struct {
	Sequence               int64
	Kind                   string
	MarketToken            string
	FundingFactorPerSecond int64
	Timestamp              time.Time
}

func NewLoop(
	eng *engine.Engine,
	positions *state.PositionStore,
	banks *ledger.BalanceTracker,
	dbChecker DBIdempotencyChecker,
	requestChan <-chan ingestion.RawRequest,
	persistChan chan<- persistence.Record,
	reportChan chan<- ingestion.Report,
	projectionChan chan<- ProjectionUpdate,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Loop {
	return &Loop{
		hasher:         NewStateHasher(),
		engine:         eng,
		positions:      positions,
		banks:          banks,
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker),
		metrics:        metrics,
		log:            log,
		requestChan:    requestChan,
		persistChan:    persistChan,
		reportChan:     reportChan,
		projectionChan: projectionChan,
	}
}

// Run drains the request channel until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-l.requestChan:
			l.Process(ctx, raw)
		}
	}
}

// Process runs one raw request end to end: parse, dedup, execute,
// ledger apply, persist, report, ack. A request that cannot be parsed
// is acked and dropped; redelivering it would fail the same way.
func (l *Loop) Process(ctx context.Context, raw ingestion.RawRequest) {
	parsed, err := ingestion.ParseRawRequest(raw)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RequestsRejected.WithLabelValues(raw.Subject, "parse").Inc()
		}
		l.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable request")
		if raw.AckFunc != nil {
			raw.AckFunc()
		}
		return
	}

	actionID := parsed.ActionID.String()
	if l.idempotency.IsDuplicate(actionID) {
		if l.metrics != nil {
			l.metrics.RequestsRejected.WithLabelValues(raw.Subject, "duplicate").Inc()
		}
		if raw.AckFunc != nil {
			raw.AckFunc()
		}
		return
	}

	out := l.execute(parsed)
	rec, rep := l.buildOutputs(actionID, parsed.Kind, raw.Timestamp, out)

	if out.err == nil {
		// Plan-less actions (market admin) still commit a hash chain
		// link so replicas agree on ordering; their digest is empty.
		var digest []byte
		if out.plan != nil {
			entries := planEntries(out.plan, out.marketToken)
			if err := l.banks.ApplyPlan(entries); err != nil {
				panic(fmt.Sprintf("FATAL: committed plan does not conserve: %v", err))
			}
			digest = l.stateDigest(entries)
		}
		l.hasher.ComputeHash(l.sequence, digest)
		l.sequence++
	}

	select {
	case l.persistChan <- rec:
	case <-ctx.Done():
		if raw.NakFunc != nil {
			raw.NakFunc()
		}
		return
	}

	l.idempotency.MarkProcessed(actionID)
	ingestion.Enqueue(l.reportChan, rep, l.metrics)

	if out.err == nil && l.projectionChan != nil {
		update := ProjectionUpdate{
			Sequence:    l.sequence - 1,
			Kind:        parsed.Kind,
			MarketToken: out.marketToken,
			Timestamp:   raw.Timestamp,
		}
		if m, ok := l.engine.Market(out.marketToken); ok {
			update.FundingFactorPerSecond = m.FundingFactorPerSecond()
		}
		select {
		case l.projectionChan <- update:
		default:
			// Dropped; the projection rebuilds from the action log.
		}
	}

	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

// executeOutcome is one finished engine call, committed or rejected.
type executeOutcome struct {
	marketToken string
	owner       string
	plan        *engine.TransferPlan
	payload     interface{}
	err         error
}

func (l *Loop) execute(parsed *ingestion.ParsedRequest) executeOutcome {
	switch parsed.Kind {
	case ingestion.KindDeposit:
		req := parsed.Deposit
		res, err := l.engine.ExecuteDeposit(*req)
		if err != nil {
			return executeOutcome{marketToken: req.MarketToken, owner: req.Receiver, err: err}
		}
		return executeOutcome{
			marketToken: req.MarketToken,
			owner:       req.Receiver,
			plan:        res.Plan,
			payload:     res.Report,
		}

	case ingestion.KindWithdrawal:
		req := parsed.Withdrawal
		res, err := l.engine.ExecuteWithdrawal(*req)
		if err != nil {
			return executeOutcome{marketToken: req.MarketToken, owner: req.Payer, err: err}
		}
		return executeOutcome{
			marketToken: req.MarketToken,
			owner:       req.Payer,
			plan:        res.Plan,
			payload:     res.Report,
		}

	case ingestion.KindSwap:
		req := parsed.Swap
		marketToken := ""
		if len(req.Path) > 0 {
			marketToken = req.Path[len(req.Path)-1]
		}
		res, err := l.engine.ExecuteSwap(*req)
		if err != nil {
			return executeOutcome{marketToken: marketToken, owner: req.Payer, err: err}
		}
		return executeOutcome{
			marketToken: marketToken,
			owner:       req.Payer,
			plan:        res.Plan,
			payload:     res.Reports,
		}

	case ingestion.KindOrder:
		return l.executeOrder(parsed.Order)

	case ingestion.KindMarketAdmin:
		req := parsed.MarketAdmin
		res, err := l.engine.ExecuteMarketAdmin(*req)
		if err != nil {
			return executeOutcome{marketToken: req.MarketToken, err: err}
		}
		return executeOutcome{
			marketToken: req.MarketToken,
			payload:     res.Report,
		}

	default:
		return executeOutcome{err: engineerr.InvalidArgument("unknown action kind " + parsed.Kind)}
	}
}

// executeOrder resolves the order's position before handing it to the
// engine. Increase orders may create the position; decrease orders
// must find one. Swap orders carry no position at all.
func (l *Loop) executeOrder(req *engine.OrderRequest) executeOutcome {
	out := executeOutcome{marketToken: req.MarketToken, owner: req.Owner}

	if req.Kind.IsSwap() {
		res, err := l.engine.ExecuteOrder(*req, nil)
		if err != nil {
			out.err = err
			return out
		}
		out.plan = res.Plan
		out.payload = orderPayload(res)
		return out
	}

	collateralToken, err := l.orderCollateralToken(req)
	if err != nil {
		out.err = err
		return out
	}
	key := state.PositionKey{
		Owner:           req.Owner,
		MarketToken:     req.MarketToken,
		CollateralToken: collateralToken,
		IsLong:          req.IsLong,
	}

	pos := l.positions.Get(key)
	created := false
	switch {
	case pos == nil && req.Kind.IsIncrease():
		pos = l.positions.GetOrCreate(key)
		created = true
	case pos == nil && collateralToken == "":
		// A decrease request may omit the collateral token; find the
		// owner's position on this market and side instead.
		for _, p := range l.positions.ByOwner(req.Owner) {
			if p.MarketToken == req.MarketToken && p.IsLong == req.IsLong {
				pos = p
				key.CollateralToken = p.CollateralToken
				break
			}
		}
	}

	res, err := l.engine.ExecuteOrder(*req, pos)
	if err != nil {
		if created {
			l.positions.Remove(key)
		}
		out.err = err
		return out
	}
	if res.ShouldRemove {
		l.positions.Remove(key)
	}
	out.plan = res.Plan
	out.payload = orderPayload(res)
	return out
}

// orderCollateralToken derives the token the position is keyed on. An
// increase order that swaps first deposits the path's output token.
func (l *Loop) orderCollateralToken(req *engine.OrderRequest) (string, error) {
	if req.Kind.IsIncrease() && len(req.SwapPath) > 0 {
		return l.engine.FinalSwapToken(req.SwapPath, req.InitialCollateralToken)
	}
	return req.InitialCollateralToken, nil
}

// orderReport is the report payload for a finished order.
type orderReport struct {
	OrderID      uint64      `json:"order_id"`
	Increase     interface{} `json:"increase,omitempty"`
	Decrease     interface{} `json:"decrease,omitempty"`
	Swaps        interface{} `json:"swaps,omitempty"`
	OutputToken  string      `json:"output_token,omitempty"`
	OutputAmount uint64      `json:"output_amount"`
}

func orderPayload(res *engine.OrderResult) orderReport {
	rep := orderReport{
		OrderID:      res.OrderID,
		OutputToken:  res.OutputToken,
		OutputAmount: res.OutputAmount,
	}
	if res.Increase != nil {
		rep.Increase = res.Increase
	}
	if res.Decrease != nil {
		rep.Decrease = res.Decrease
	}
	if len(res.Swaps) > 0 {
		rep.Swaps = res.Swaps
	}
	return rep
}

// buildOutputs assembles the persistence record and outbound report
// for one finished action.
func (l *Loop) buildOutputs(actionID, kind string, ts time.Time, out executeOutcome) (persistence.Record, ingestion.Report) {
	row := persistence.ActionRow{
		ActionID:    actionID,
		Kind:        kind,
		MarketToken: out.marketToken,
		Owner:       out.owner,
		Timestamp:   ts,
	}
	rep := ingestion.Report{
		ActionID:    actionID,
		Kind:        kind,
		MarketToken: out.marketToken,
		Owner:       out.owner,
		Timestamp:   ts,
	}

	if out.err != nil {
		row.Status = "rejected"
		row.Reason = engineerr.Reason(out.err)
		rep.Status = "rejected"
		rep.Reason = row.Reason
		return persistence.Record{Action: row}, rep
	}

	row.Status = "executed"
	row.Report = persistence.MarshalReport(out.payload)
	rep.Status = "executed"
	rep.Payload = out.payload

	rec := persistence.Record{Action: row}
	if out.plan != nil {
		rec.Action.PlanID = out.plan.ID.String()
		rep.PlanID = rec.Action.PlanID
		rec.Transfers = transferRows(out.plan)
	}
	return rec, rep
}

// transferRows flattens a plan into rows, numbering entries in plan
// order: transfers, then mints, then burns.
func transferRows(plan *engine.TransferPlan) []persistence.TransferRow {
	planID := plan.ID.String()
	rows := make([]persistence.TransferRow, 0, len(plan.Transfers)+len(plan.Mints)+len(plan.Burns))
	idx := int32(0)
	for _, t := range plan.Transfers {
		rows = append(rows, persistence.TransferRow{
			PlanID:    planID,
			EntryIdx:  idx,
			EntryType: "transfer",
			Token:     t.Token,
			FromBank:  t.FromBank,
			ToBank:    t.ToBank,
			Amount:    int64(t.Amount),
		})
		idx++
	}
	for _, m := range plan.Mints {
		rows = append(rows, persistence.TransferRow{
			PlanID:    planID,
			EntryIdx:  idx,
			EntryType: "mint",
			ToBank:    m.To,
			Amount:    int64(m.Amount),
		})
		idx++
	}
	for _, b := range plan.Burns {
		rows = append(rows, persistence.TransferRow{
			PlanID:    planID,
			EntryIdx:  idx,
			EntryType: "burn",
			FromBank:  b.From,
			Amount:    int64(b.Amount),
		})
		idx++
	}
	return rows
}

// planEntries converts an engine plan into ledger entries. Mint and
// burn entries are always denominated in the acting market's token.
func planEntries(plan *engine.TransferPlan, marketToken string) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(plan.Transfers)+len(plan.Mints)+len(plan.Burns))
	for _, t := range plan.Transfers {
		entries = append(entries, ledger.Entry{
			Token:    t.Token,
			FromBank: t.FromBank,
			ToBank:   t.ToBank,
			Amount:   t.Amount,
		})
	}
	for _, m := range plan.Mints {
		entries = append(entries, ledger.Entry{
			Token:  marketToken,
			ToBank: m.To,
			Amount: m.Amount,
			IsMint: true,
		})
	}
	for _, b := range plan.Burns {
		entries = append(entries, ledger.Entry{
			Token:    marketToken,
			FromBank: b.From,
			Amount:   b.Amount,
			IsBurn:   true,
		})
	}
	return entries
}

// stateDigest builds canonical bytes over the banks an action touched:
// each affected bank's path and post-apply balance, sorted.
func (l *Loop) stateDigest(entries []ledger.Entry) []byte {
	affected := make(map[ledger.BankKey]bool, len(entries)*2)
	for _, e := range entries {
		if e.FromBank != "" {
			affected[ledger.BankKey{Bank: e.FromBank, Token: e.Token}] = true
		}
		if e.ToBank != "" {
			affected[ledger.BankKey{Bank: e.ToBank, Token: e.Token}] = true
		}
	}

	keys := make([]ledger.BankKey, 0, len(affected))
	for key := range affected {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Bank != keys[j].Bank {
			return keys[i].Bank < keys[j].Bank
		}
		return keys[i].Token < keys[j].Token
	})

	digest := make([]byte, 0, len(keys)*48)
	for _, key := range keys {
		path := key.Bank + "/" + key.Token
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, l.banks.Balance(key.Bank, key.Token))
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// WarmLRU preloads recent action IDs so redeliveries after a restart
// skip the cold-path DB lookup.
func (l *Loop) WarmLRU(actionIDs []string) {
	l.idempotency.lru.WarmFromKeys(actionIDs)
}

// Sequence returns the number of committed actions.
func (l *Loop) Sequence() int64 {
	return l.sequence
}

// StateHash returns the current hash chain tip.
func (l *Loop) StateHash() [32]byte {
	return l.hasher.GetPrevHash()
}

// Positions exposes the store for read-only queries.
func (l *Loop) Positions() *state.PositionStore {
	return l.positions
}

// Banks exposes the bank ledger for read-only queries.
func (l *Loop) Banks() *ledger.BalanceTracker {
	return l.banks
}
