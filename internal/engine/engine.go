// Package engine 驱动报价主循环：取数、风控、撤单、挂单，
// 每个周期为一个原子单元，周期间不保留挂单。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quoter-go/exchange"
	"quoter-go/market"
	"quoter-go/monitor"
	"quoter-go/order"
	"quoter-go/risk"
	"quoter-go/strategy"
)

// Phase 周期阶段。
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseRiskCheck
	PhaseComputing
	PhaseCancelling
	PhasePlacing
	PhaseHalted
	PhaseStopped
)

// String 返回阶段名称
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseFetching:
		return "FETCHING"
	case PhaseRiskCheck:
		return "RISK_CHECK"
	case PhaseComputing:
		return "COMPUTING"
	case PhaseCancelling:
		return "CANCELLING"
	case PhasePlacing:
		return "PLACING"
	case PhaseHalted:
		return "HALTED"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// FillStore 成交落盘的可选协作方。
type FillStore interface {
	SaveFill(f order.Fill, realized float64) error
}

// Config 引擎配置
type Config struct {
	Pair            string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	ShutdownGrace   time.Duration
	MaxOpenOrders   int
}

// Components 引擎依赖组件
type Components struct {
	Client   exchange.Client
	Strategy strategy.Config
	Risk     *risk.Manager
	Sink     monitor.Sink
	Store    FillStore // 可为 nil
	Logger   *zap.Logger
}

// Engine 报价编排器。每个周期全量撤换：先撤掉上一周期的梯子，
// 再挂出新梯子，从不改单。
type Engine struct {
	cfg    Config
	client exchange.Client
	strat  strategy.Config
	risk   *risk.Manager
	sink   monitor.Sink
	store  FillStore
	log    *zap.Logger

	book     *order.Book
	detector *order.Detector
	ledger   *order.Ledger

	phase    atomic.Int32
	inFlight atomic.Bool
	cycleSeq atomic.Uint64

	mu           sync.Mutex
	running      bool
	prevBalances market.Balances
	havePrev     bool
	lastRecord   monitor.CycleRecord

	stopChan chan struct{}
	doneChan chan struct{}
}

// New 创建引擎。
func New(cfg Config, c Components) (*Engine, error) {
	if cfg.Pair == "" {
		return nil, errors.New("pair is required")
	}
	if c.Client == nil || c.Risk == nil || c.Logger == nil {
		return nil, errors.New("client, risk and logger are required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	sink := c.Sink
	if sink == nil {
		sink = monitor.MultiSink{}
	}
	return &Engine{
		cfg:      cfg,
		client:   c.Client,
		strat:    c.Strategy,
		risk:     c.Risk,
		sink:     sink,
		store:    c.Store,
		log:      c.Logger.Named("engine"),
		book:     order.NewBook(),
		detector: order.NewDetector(),
		ledger:   order.NewLedger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Phase 返回当前阶段。
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// LastRecord 返回最近一轮周期记录。
func (e *Engine) LastRecord() monitor.CycleRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRecord
}

// Risk 暴露风控管理器，供外部手工停机/恢复。
func (e *Engine) Risk() *risk.Manager {
	return e.risk
}

// Start 启动主循环。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.running = true
	e.mu.Unlock()

	e.log.Info("engine starting",
		zap.String("pair", e.cfg.Pair),
		zap.Duration("refreshInterval", e.cfg.RefreshInterval),
		zap.Int("maxOpenOrders", e.cfg.MaxOpenOrders))

	// 开机清场：上一次运行可能在场所留下了孤儿挂单
	sweepCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	if err := e.client.CancelAllOrders(sweepCtx, e.cfg.Pair); err != nil {
		e.log.Warn("startup cancel-all sweep failed", zap.Error(err))
	}

	go e.run(ctx)
	return nil
}

// Stop 停止主循环并发起收尾撤单。幂等。
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	select {
	case <-e.doneChan:
	case <-time.After(e.cfg.ShutdownGrace + e.cfg.RefreshInterval):
		e.log.Warn("timeout waiting for run loop")
	}

	// 收尾：场所侧不留挂单
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownGrace)
	defer cancel()
	if err := e.client.CancelAllOrders(ctx, e.cfg.Pair); err != nil {
		e.log.Error("final cancel-all failed, orders may remain", zap.Error(err))
	} else {
		e.log.Info("final cancel-all done", zap.Int("tracked", e.book.Len()))
	}
	e.book.Clear()
	e.phase.Store(int32(PhaseStopped))
	e.log.Info("engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	// 启动即跑一轮，不等首个 tick
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("context done, stopping run loop")
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick 单飞：上一轮尚未结束时直接合并掉本次触发。
func (e *Engine) tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Debug("cycle still in flight, coalescing tick")
		return
	}
	defer e.inFlight.Store(false)
	e.cycle(ctx)
}

// cycle 执行一个完整周期。
func (e *Engine) cycle(ctx context.Context) {
	started := time.Now()
	rec := monitor.CycleRecord{
		Cycle:     e.cycleSeq.Add(1),
		Timestamp: started,
	}
	defer func() {
		rec.Elapsed = time.Since(started)
		rec.OpenOrders = e.book.Len()
		e.mu.Lock()
		e.lastRecord = rec
		e.mu.Unlock()
		e.sink.Publish(rec)
		e.phase.Store(int32(PhaseIdle))
	}()

	// 阶段一：取行情与账户
	e.phase.Store(int32(PhaseFetching))
	snap, balances, open, err := e.fetch(ctx)
	if err != nil {
		// 取数失败按兵不动：在场挂单原样保留，等下一周期
		rec.Outcome = monitor.OutcomeSkipped
		rec.Err = err.Error()
		e.log.Warn("fetch failed, leaving resting orders untouched", zap.Error(err))
		return
	}
	rec.Mid, rec.BestBid, rec.BestAsk = snap.Mid, snap.BestBid, snap.BestAsk

	// 成交检出与入账
	rec.Fills = e.settleFills(open, balances)
	rec.RealizedPnL = e.ledger.Realized()
	unrealized := e.ledger.Unrealized(snap.Mid)
	rec.UnrealizedPnL = unrealized

	// 阶段二：风控
	e.phase.Store(int32(PhaseRiskCheck))
	state, riskErr := e.risk.Update(balances, snap.Mid, unrealized)
	if riskErr != nil {
		state = risk.HaltedState(riskErr)
	} else {
		if d := e.risk.CheckHalt(state); d.Halted {
			state.Halted = true
			state.HaltReason = d.Reason
		}
	}
	rec.InventoryRatio = state.InventoryRatio
	rec.Skew = state.Skew
	rec.DailyPnL = state.DailyPnL
	if state.DailyRolled {
		rec.DailyRolled = true
		rec.PriorDailyPnL = state.PriorDailyPnL
		e.log.Info("daily pnl window reset",
			zap.Float64("priorDailyPnl", state.PriorDailyPnL),
			zap.Time("windowStart", state.UpdatedAt))
	}

	if state.Halted {
		e.phase.Store(int32(PhaseHalted))
		rec.Outcome = monitor.OutcomeHalted
		rec.Halted = true
		rec.HaltReason = state.HaltReason
		rec.Canceled, rec.CancelFailed = e.protectiveCancel(ctx)
		return
	}

	// 阶段三：算梯子
	e.phase.Store(int32(PhaseComputing))
	ladder, droppedLevels := strategy.Compute(e.strat, strategy.Inputs{
		Mid:            snap.Mid,
		BestBid:        snap.BestBid,
		BestAsk:        snap.BestAsk,
		Skew:           state.Skew,
		BaseAvailable:  balances.BaseAvailable,
		QuoteAvailable: balances.QuoteAvailable,
	})
	for _, d := range droppedLevels {
		e.log.Debug("level dropped",
			zap.String("side", string(d.Side)),
			zap.Int("level", d.Level),
			zap.String("reason", string(d.Reason)),
			zap.String("detail", d.Detail))
	}
	quotes := e.trim(ladder)
	rec.Dropped = len(droppedLevels) + (len(ladder.Bids) + len(ladder.Asks) - len(quotes))

	// 阶段四：全量撤换上一周期的梯子，从不改单。
	e.phase.Store(int32(PhaseCancelling))
	rec.Canceled, rec.CancelFailed = e.cancelTracked(ctx)

	// 阶段五：挂新梯子。单笔失败不影响其余档位。
	e.phase.Store(int32(PhasePlacing))
	rec.Placed, rec.Rejected = e.place(ctx, quotes)
	rec.Outcome = monitor.OutcomeQuoted
}

// fetch 在统一超时内拉取盘口、余额与在场挂单。
func (e *Engine) fetch(parent context.Context) (market.Snapshot, market.Balances, []exchange.OrderHandle, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.RequestTimeout)
	defer cancel()

	book, err := e.client.GetOrderbook(ctx, e.cfg.Pair)
	if err != nil {
		return market.Snapshot{}, market.Balances{}, nil, fmt.Errorf("orderbook: %w", err)
	}
	acct, err := e.client.GetBalances(ctx)
	if err != nil {
		return market.Snapshot{}, market.Balances{}, nil, fmt.Errorf("balances: %w", err)
	}
	open, err := e.client.ListOpenOrders(ctx, e.cfg.Pair)
	if err != nil {
		return market.Snapshot{}, market.Balances{}, nil, fmt.Errorf("open orders: %w", err)
	}

	var bestBid, bestAsk decimal.Decimal
	if len(book.Bids) > 0 {
		bestBid = book.Bids[0].Price
	}
	if len(book.Asks) > 0 {
		bestAsk = book.Asks[0].Price
	}
	snap := market.NewSnapshot(bestBid, bestAsk, book.LastPrice, book.Timestamp)
	if !snap.Valid() {
		return market.Snapshot{}, market.Balances{}, nil, errors.New("no reference price: empty book and no last trade")
	}

	bal := market.NewBalances(acct.BaseAvailable, acct.BaseHeld, acct.QuoteAvailable, acct.QuoteHeld)
	return snap, bal, open, nil
}

// settleFills 对比上一周期状态检出成交并入账，返回成交笔数。
func (e *Engine) settleFills(open []exchange.OrderHandle, cur market.Balances) int {
	e.mu.Lock()
	prev, havePrev := e.prevBalances, e.havePrev
	e.prevBalances, e.havePrev = cur, true
	e.mu.Unlock()

	if !havePrev {
		// 首轮没有对比基准，只登记现状
		return 0
	}

	fills, removed := e.detector.Diff(e.book.Handles(), open, prev, cur)
	for _, f := range fills {
		qty, _ := f.Quantity.Float64()
		px, _ := f.Price.Float64()
		delta := e.ledger.Record(f.Side, qty, px, 0)
		e.risk.RecordRealized(delta)
		if e.store != nil {
			if err := e.store.SaveFill(f, delta); err != nil {
				e.log.Error("persist fill failed", zap.String("orderId", f.OrderID), zap.Error(err))
			}
		}
		if h, ok := e.book.Get(f.OrderID); ok {
			e.book.MarkFilled(f.OrderID, h.Filled.Add(f.Quantity))
		}
		e.log.Info("fill detected",
			zap.String("orderId", f.OrderID),
			zap.Int("seq", f.Seq),
			zap.String("side", string(f.Side)),
			zap.String("price", f.Price.String()),
			zap.String("quantity", f.Quantity.String()),
			zap.String("notional", f.Notional().String()),
			zap.Float64("realizedDelta", delta))
	}
	for _, id := range removed {
		e.book.Remove(id)
	}
	return len(fills)
}

// protectiveCancel 停机周期只撤不挂。撤单永不被停机阻止。
func (e *Engine) protectiveCancel(ctx context.Context) (canceled, failed int) {
	return e.cancelTracked(ctx)
}

// cancelTracked 逐笔撤掉全部被跟踪挂单。单笔失败重试一次后仍然
// 从跟踪集合中丢弃：宁可以后重复撤单，也不能丢失一张卡住的订单。
func (e *Engine) cancelTracked(ctx context.Context) (canceled, failed int) {
	for _, h := range e.book.Handles() {
		err := e.cancelOne(ctx, h.ID)
		if err != nil {
			e.log.Warn("cancel failed, retrying once", zap.String("orderId", h.ID), zap.Error(err))
			err = e.cancelOne(ctx, h.ID)
		}
		if err != nil {
			failed++
			e.log.Error("cancel failed twice, dropping from tracked set",
				zap.String("orderId", h.ID), zap.Error(err))
		} else {
			canceled++
		}
		e.book.Remove(h.ID)
		e.detector.Forget(h.ID)
	}
	return canceled, failed
}

func (e *Engine) cancelOne(parent context.Context, id string) error {
	ctx, cancel := context.WithTimeout(parent, e.cfg.RequestTimeout)
	defer cancel()
	err := e.client.CancelOrder(ctx, id)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		// 场所侧已经没有这张单，目的已达成
		return nil
	}
	return err
}

// trim 把梯子压进在场挂单上限：逐档交替保留贴近 mid 的档位。
func (e *Engine) trim(ladder strategy.Ladder) []strategy.Quote {
	total := len(ladder.Bids) + len(ladder.Asks)
	limit := e.cfg.MaxOpenOrders
	if limit <= 0 || total <= limit {
		out := make([]strategy.Quote, 0, total)
		out = append(out, ladder.Bids...)
		out = append(out, ladder.Asks...)
		return out
	}
	out := make([]strategy.Quote, 0, limit)
	for i := 0; len(out) < limit; i++ {
		added := false
		if i < len(ladder.Bids) {
			out = append(out, ladder.Bids[i])
			added = true
		}
		if len(out) < limit && i < len(ladder.Asks) {
			out = append(out, ladder.Asks[i])
			added = true
		}
		if !added {
			break
		}
	}
	return out
}

// place 独立挂出每一档；单笔拒单记数并继续。
func (e *Engine) place(parent context.Context, quotes []strategy.Quote) (placed, rejected int) {
	for _, q := range quotes {
		ctx, cancel := context.WithTimeout(parent, e.cfg.RequestTimeout)
		id, err := e.client.PlaceLimitOrder(ctx, e.cfg.Pair, q.Side, q.Price, q.Quantity)
		cancel()
		if err != nil {
			rejected++
			e.log.Warn("placement rejected",
				zap.String("side", string(q.Side)),
				zap.Int("level", q.Level),
				zap.String("price", q.Price.String()),
				zap.Error(err))
			continue
		}
		e.book.Add(order.Handle{
			ID:       id,
			Side:     q.Side,
			Price:    q.Price,
			Quantity: q.Quantity,
			Level:    q.Level,
			PlacedAt: time.Now(),
		})
		placed++
	}
	return placed, rejected
}
