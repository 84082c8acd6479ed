// Package risk 是新单放行的唯一权威：跟踪盈亏、敞口与库存比例，
// 计算 skew 并给出停机决定。停机只阻止新挂单，永不阻止撤单。
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"quoter-go/market"
)

// 停机原因。
const (
	ReasonStopLoss  = "stop_loss"
	ReasonDailyLoss = "daily_loss"
	ReasonExposure  = "exposure"
	ReasonManual    = "manual"
	ReasonRiskError = "risk_error"
)

var errEmptyPortfolio = errors.New("portfolio value is zero")

// Config 风控参数；启动校验后不可变。
type Config struct {
	MaxBaseExposure      float64
	MaxQuoteExposure     float64
	StopLossUSDT         float64 // 负值
	DailyLossLimitUSDT   float64 // 负值
	TargetInventoryRatio float64
	MaxSkew              float64
}

// State 每周期重算的风险视图。
type State struct {
	SessionPnL     float64 // 未实现盈亏（FIFO 未配对持仓按当前 mid 计）
	DailyPnL       float64 // 已实现盈亏，24h 窗口
	InventoryRatio float64
	Skew           float64
	BaseExposure   float64
	QuoteExposure  float64
	Halted         bool
	HaltReason     string
	UpdatedAt      time.Time

	// DailyRolled 置位表示 24h 窗口在本次（或上次失败的）更新中
	// 翻转，PriorDailyPnL 保存翻转前一窗口的已实现盈亏。
	DailyRolled   bool
	PriorDailyPnL float64
}

// Decision 停机判定结果。
type Decision struct {
	Halted bool
	Reason string
}

// Manager 风控管理器；由编排器独占持有。
type Manager struct {
	cfg Config

	mu           sync.Mutex
	dailyPnL     float64
	sessionPnL   float64 // 已实现（会话累计）
	dayStart     time.Time
	manualHalt   bool
	manualReason string

	// 窗口翻转信息，挂起到下一次成功的 Update 才随状态带出，
	// 失败周期不会弄丢前一窗口的数字。
	rollPending bool
	rollPrior   float64

	now func() time.Time
}

// NewManager 创建风控管理器。
func NewManager(cfg Config) *Manager {
	return NewManagerWithClock(cfg, time.Now)
}

// NewManagerWithClock 供测试注入时钟。
func NewManagerWithClock(cfg Config, now func() time.Time) *Manager {
	return &Manager{cfg: cfg, dayStart: now(), now: now}
}

// RecordRealized 累加来自成交核算的已实现盈亏增量。
func (m *Manager) RecordRealized(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL += pnl
	m.sessionPnL += pnl
}

// DailyPnL 返回当前日内已实现盈亏。
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// Update 由余额、中间价与未实现盈亏重算风险视图。
// 任何计算错误都视为停机，绝不放行：调用方拿到 err 时必须使用
// HaltedState 返回的保护性状态。
func (m *Manager) Update(b market.Balances, mid, unrealized float64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.dayStart) > 24*time.Hour {
		m.rollPending = true
		m.rollPrior = m.dailyPnL
		m.dailyPnL = 0
		m.dayStart = now
	}

	if mid <= 0 {
		return State{}, fmt.Errorf("invalid mid price %.10f", mid)
	}

	baseValue := b.BaseTotal() * mid
	portfolio := baseValue + b.QuoteTotal()
	if portfolio <= 0 {
		return State{}, errEmptyPortfolio
	}

	ratio := baseValue / portfolio
	skew := clamp(m.cfg.TargetInventoryRatio-ratio, -m.cfg.MaxSkew, m.cfg.MaxSkew)

	st := State{
		SessionPnL:     unrealized,
		DailyPnL:       m.dailyPnL,
		InventoryRatio: ratio,
		Skew:           skew,
		BaseExposure:   b.BaseHeld,
		QuoteExposure:  b.QuoteHeld,
		UpdatedAt:      now,
	}
	if m.rollPending {
		st.DailyRolled = true
		st.PriorDailyPnL = m.rollPrior
		m.rollPending = false
	}
	return st, nil
}

// CheckHalt 判定是否停机。纯函数式判定：条件满足即停，
// 条件解除则自动恢复；手工停机例外，需显式 Resume。
func (m *Manager) CheckHalt(s State) Decision {
	m.mu.Lock()
	manual, reason := m.manualHalt, m.manualReason
	m.mu.Unlock()
	if manual {
		return Decision{Halted: true, Reason: reason}
	}

	switch {
	case s.SessionPnL <= m.cfg.StopLossUSDT:
		return Decision{Halted: true, Reason: ReasonStopLoss}
	case s.DailyPnL <= m.cfg.DailyLossLimitUSDT:
		return Decision{Halted: true, Reason: ReasonDailyLoss}
	case s.BaseExposure > m.cfg.MaxBaseExposure || s.QuoteExposure > m.cfg.MaxQuoteExposure:
		return Decision{Halted: true, Reason: ReasonExposure}
	}
	return Decision{}
}

// HaltedState 返回错误情形下的保护性状态（失败即停机策略）。
func HaltedState(err error) State {
	reason := ReasonRiskError
	return State{Halted: true, HaltReason: reason + ": " + err.Error(), UpdatedAt: time.Now()}
}

// Halt 手工停机。
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualHalt = true
	if reason == "" {
		reason = ReasonManual
	}
	m.manualReason = reason
}

// Resume 手工恢复；自动条件仍可能在下一周期再次停机。
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualHalt = false
	m.manualReason = ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
