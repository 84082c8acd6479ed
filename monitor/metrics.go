package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标收集器，自带独立 registry。
type Metrics struct {
	registry *prometheus.Registry

	// 周期指标
	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram

	// 订单指标
	quotesPlaced   prometheus.Counter
	quotesRejected prometheus.Counter
	quotesDropped  prometheus.Counter
	ordersCanceled prometheus.Counter
	cancelFailures prometheus.Counter
	fillsTotal     prometheus.Counter
	openOrders     prometheus.Gauge

	// 行情指标
	midPrice prometheus.Gauge
	bidPrice prometheus.Gauge
	askPrice prometheus.Gauge

	// 仓位与盈亏
	inventoryRatio prometheus.Gauge
	skew           prometheus.Gauge
	realizedPnL    prometheus.Gauge
	unrealizedPnL  prometheus.Gauge
	dailyPnL       prometheus.Gauge

	// 风控指标
	halted     prometheus.Gauge
	haltsTotal *prometheus.CounterVec

	mu         sync.Mutex
	lastHalted bool
}

// MetricsConfig 指标命名配置。
type MetricsConfig struct {
	Namespace string
	Subsystem string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "quoter", Subsystem: "engine"}
}

// NewMetrics 创建指标收集器。
func NewMetrics(cfg MetricsConfig) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycles_total",
			Help:      "周期总数",
		}, []string{"outcome"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "周期耗时分布（秒）",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),

		quotesPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quotes_placed_total",
			Help:      "下单成功总数",
		}),
		quotesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quotes_rejected_total",
			Help:      "下单被拒总数",
		}),
		quotesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quotes_dropped_total",
			Help:      "本地丢弃报价总数（精度/穿价/预算）",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "撤单总数",
		}),
		cancelFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cancel_failures_total",
			Help:      "撤单失败总数",
		}),
		fillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fills_total",
			Help:      "检出成交总数",
		}),
		openOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_orders",
			Help:      "当前在途挂单数",
		}),

		midPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mid_price",
			Help:      "当前中间价",
		}),
		bidPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bid_price",
			Help:      "当前买一价",
		}),
		askPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ask_price",
			Help:      "当前卖一价",
		}),

		inventoryRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inventory_ratio",
			Help:      "基础币占组合价值比例",
		}),
		skew: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inventory_skew",
			Help:      "库存偏斜（目标比例-当前比例，截断后）",
		}),
		realizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "realized_pnl",
			Help:      "已实现盈亏",
		}),
		unrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unrealized_pnl",
			Help:      "未实现盈亏（按中间价计）",
		}),
		dailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "daily_pnl",
			Help:      "当日已实现盈亏",
		}),

		halted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "risk_halted",
			Help:      "风控状态(0=报价中,1=暂停)",
		}),
		haltsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "risk_halts_total",
			Help:      "风控暂停触发总数",
		}, []string{"reason"}),
	}
	return m
}

// Publish 实现 Sink。
func (m *Metrics) Publish(rec CycleRecord) {
	m.cyclesTotal.WithLabelValues(string(rec.Outcome)).Inc()
	m.cycleDuration.Observe(rec.Elapsed.Seconds())

	m.quotesPlaced.Add(float64(rec.Placed))
	m.quotesRejected.Add(float64(rec.Rejected))
	m.quotesDropped.Add(float64(rec.Dropped))
	m.ordersCanceled.Add(float64(rec.Canceled))
	m.cancelFailures.Add(float64(rec.CancelFailed))
	m.fillsTotal.Add(float64(rec.Fills))
	m.openOrders.Set(float64(rec.OpenOrders))

	if rec.Mid > 0 {
		m.midPrice.Set(rec.Mid)
		m.bidPrice.Set(rec.BestBid)
		m.askPrice.Set(rec.BestAsk)
	}

	m.inventoryRatio.Set(rec.InventoryRatio)
	m.skew.Set(rec.Skew)
	m.realizedPnL.Set(rec.RealizedPnL)
	m.unrealizedPnL.Set(rec.UnrealizedPnL)
	m.dailyPnL.Set(rec.DailyPnL)

	m.mu.Lock()
	if rec.Halted {
		// 仅在翻转进入暂停时计一次触发
		if !m.lastHalted {
			m.haltsTotal.WithLabelValues(rec.HaltReason).Inc()
		}
		m.halted.Set(1)
	} else {
		m.halted.Set(0)
	}
	m.lastHalted = rec.Halted
	m.mu.Unlock()
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
