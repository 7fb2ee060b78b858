// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
)

// Collector exposes the bot's counters on a private registry.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	decisions     *prometheus.CounterVec
	trades        *prometheus.CounterVec
	discovered    prometheus.Counter
	positions     *prometheus.GaugeVec
	fetchFailures prometheus.Counter
	fetchLatency  prometheus.Histogram

	mu   sync.Mutex
	subs []events.Subscription
	srv  *http.Server
}

// New creates a collector with every metric registered.
func New(logger *zap.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.Named("metrics"),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpbot_sell_decisions_total",
				Help: "Sell decisions split by exit rule",
			},
			[]string{"rule"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpbot_trades_total",
				Help: "Trade attempts split by action and result",
			},
			[]string{"action", "result"}, // result: ok|failed
		),
		discovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pumpbot_discovered_positions_total",
				Help: "Wallet holdings picked up by reconciliation",
			},
		),
		positions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pumpbot_tracked_positions",
				Help: "Positions currently tracked, by origin",
			},
			[]string{"origin"},
		),
		fetchFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pumpbot_snapshot_fetch_failures_total",
				Help: "Market snapshot requests that failed",
			},
		),
		fetchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pumpbot_snapshot_fetch_seconds",
				Help:    "Market snapshot request latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
			},
		),
	}

	c.registry.MustRegister(c.decisions, c.trades, c.discovered, c.positions, c.fetchFailures, c.fetchLatency)
	c.registry.MustRegister(collectors.NewGoCollector())
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveSnapshotFetch records one market snapshot request.
func (c *Collector) ObserveSnapshotFetch(d time.Duration, err error) {
	c.fetchLatency.Observe(d.Seconds())
	if err != nil {
		c.fetchFailures.Inc()
	}
}

// SetTrackedPositions sets the tracked positions gauge for origin.
func (c *Collector) SetTrackedPositions(origin domain.Origin, n int) {
	c.positions.WithLabelValues(string(origin)).Set(float64(n))
}

// Attach counts decisions and trade outcomes published on bus.
func (c *Collector) Attach(bus *events.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range []events.EventType{
		events.SellDecided,
		events.PositionOpened,
		events.PositionClosed,
		events.PositionDiscovered,
		events.TradeFailed,
	} {
		c.subs = append(c.subs, bus.SubscribeFunc(t, c.handle))
	}
}

func (c *Collector) handle(_ context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.SellDecidedEvent:
		c.decisions.WithLabelValues(string(ev.Decision.Rule)).Inc()
	case events.PositionOpenedEvent:
		c.trades.WithLabelValues(string(domain.ActionBuy), "ok").Inc()
	case events.PositionClosedEvent:
		c.trades.WithLabelValues(string(domain.ActionSell), "ok").Inc()
	case events.TradeFailedEvent:
		c.trades.WithLabelValues(string(ev.Intent.Action), "failed").Inc()
	case events.PositionDiscoveredEvent:
		c.discovered.Inc()
	}
	return nil
}

// Handler serves /metrics and /healthz.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve starts the metrics endpoint on addr in the background.
func (c *Collector) Serve(addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	c.mu.Lock()
	c.srv = srv
	c.mu.Unlock()

	go func() {
		c.logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}

// Close detaches from the bus and stops the endpoint if it was started.
func (c *Collector) Close() error {
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	srv := c.srv
	c.srv = nil
	c.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
