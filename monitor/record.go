// Package monitor 汇集每轮报价周期的可观测输出：结构化日志、
// Prometheus 指标与仪表盘 WebSocket 推送。
package monitor

import (
	"time"

	"go.uber.org/zap"
)

// Outcome 一轮周期的结束状态。
type Outcome string

const (
	OutcomeQuoted  Outcome = "quoted"  // 正常挂出阶梯
	OutcomeHalted  Outcome = "halted"  // 风控暂停，仅保护性撤单
	OutcomeSkipped Outcome = "skipped" // 行情/余额获取失败，按兵不动
)

// CycleRecord 一轮周期的完整快照，供各 Sink 消费。
type CycleRecord struct {
	Cycle     uint64    `json:"cycle"`
	Timestamp time.Time `json:"ts"`
	Outcome   Outcome   `json:"outcome"`

	Mid     float64 `json:"mid"`
	BestBid float64 `json:"bestBid"`
	BestAsk float64 `json:"bestAsk"`

	InventoryRatio float64 `json:"inventoryRatio"`
	Skew           float64 `json:"skew"`
	RealizedPnL    float64 `json:"realizedPnl"`
	UnrealizedPnL  float64 `json:"unrealizedPnl"`
	DailyPnL       float64 `json:"dailyPnl"`
	DailyRolled    bool    `json:"dailyRolled,omitempty"`
	PriorDailyPnL  float64 `json:"priorDailyPnl,omitempty"`

	Halted     bool   `json:"halted"`
	HaltReason string `json:"haltReason,omitempty"`

	Placed       int `json:"placed"`
	Rejected     int `json:"rejected"`
	Dropped      int `json:"dropped"`
	Canceled     int `json:"canceled"`
	CancelFailed int `json:"cancelFailed"`
	Fills        int `json:"fills"`
	OpenOrders   int `json:"openOrders"`

	Elapsed time.Duration `json:"elapsedNs"`
	Err     string        `json:"err,omitempty"`
}

// Sink 消费周期记录。实现必须自行保证并发安全。
type Sink interface {
	Publish(CycleRecord)
}

// MultiSink 依次分发到多个 Sink。
type MultiSink []Sink

func (ms MultiSink) Publish(rec CycleRecord) {
	for _, s := range ms {
		s.Publish(rec)
	}
}

// LogSink 以结构化日志输出周期摘要。
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("cycle")}
}

func (s *LogSink) Publish(rec CycleRecord) {
	fields := []zap.Field{
		zap.Uint64("cycle", rec.Cycle),
		zap.String("outcome", string(rec.Outcome)),
		zap.Float64("mid", rec.Mid),
		zap.Float64("inventoryRatio", rec.InventoryRatio),
		zap.Float64("skew", rec.Skew),
		zap.Float64("realizedPnl", rec.RealizedPnL),
		zap.Float64("unrealizedPnl", rec.UnrealizedPnL),
		zap.Int("placed", rec.Placed),
		zap.Int("canceled", rec.Canceled),
		zap.Int("fills", rec.Fills),
		zap.Duration("elapsed", rec.Elapsed),
	}
	if rec.Err != "" {
		fields = append(fields, zap.String("err", rec.Err))
	}
	switch {
	case rec.Halted:
		s.log.Warn("cycle halted", append(fields, zap.String("reason", rec.HaltReason))...)
	case rec.Outcome == OutcomeSkipped:
		s.log.Warn("cycle skipped", fields...)
	default:
		s.log.Info("cycle done", fields...)
	}
}
