// Package metrics 提供 Prometheus helper，包含本服务常用的 counter/gauge/histogram
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/rebalancer/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// 余额事件更新计数
	LedgerUpdatesTotal prometheus.Counter
	// 再平衡决策计数（按方向）
	DecisionsTotal *prometheus.CounterVec
	// 量化后为零被抑制的决策计数
	DecisionsSuppressed prometheus.Counter
	// 提交成功的订单计数
	OrdersSubmittedTotal prometheus.Counter
	// 被交易所拒绝的订单计数
	OrdersRejectedTotal prometheus.Counter
	// 清理器撤销的订单计数
	OrdersReapedTotal prometheus.Counter
	// 死信消息计数
	PoisonMessagesTotal prometheus.Counter
	// 交易所请求耗时
	VenueRequestDuration *prometheus.HistogramVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		LedgerUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "ledger_updates_total",
			Help:      "Total balance events applied to the ledger",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "decisions_total",
			Help:      "Total rebalance decisions by side",
		}, []string{"side"}),
		DecisionsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "decisions_suppressed_total",
			Help:      "Decisions whose quantized size was zero",
		}),
		OrdersSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "orders_submitted_total",
			Help:      "Orders acknowledged by the venue",
		}),
		OrdersRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "orders_rejected_total",
			Help:      "Orders permanently rejected by the venue",
		}),
		OrdersReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "orders_reaped_total",
			Help:      "Stale orders canceled by the reaper",
		}),
		PoisonMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "poison_messages_total",
			Help:      "Malformed events routed to the dead letter topic",
		}),
		VenueRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rebalancer",
			Subsystem: serviceName,
			Name:      "venue_request_duration_seconds",
			Help:      "Venue REST request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.LedgerUpdatesTotal,
		m.DecisionsTotal,
		m.DecisionsSuppressed,
		m.OrdersSubmittedTotal,
		m.OrdersRejectedTotal,
		m.OrdersReapedTotal,
		m.PoisonMessagesTotal,
		m.VenueRequestDuration,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
