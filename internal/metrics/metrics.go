// Package metrics exposes chatsync's Prometheus instruments. All methods are
// safe on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "chatsync"

// Metrics groups the counters and gauges updated by the synchronizers.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	connects       *prometheus.CounterVec
	channelOpen    *prometheus.GaugeVec
	alerts         prometheus.Counter
	unseen         prometheus.Gauge
	sendsQueued    prometheus.Counter
	rpcs           *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Frames received per channel purpose.",
		}, []string{"purpose"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Malformed frames dropped per channel purpose.",
		}, []string{"purpose"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_attempts_total",
			Help: "Channel open attempts by purpose and outcome.",
		}, []string{"purpose", "result"}),
		channelOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channel_open",
			Help: "1 while the channel for a purpose is OPEN.",
		}, []string{"purpose"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unseen_alerts_total",
			Help: "Local alerts raised for unseen-count increases.",
		}),
		unseen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "unseen_messages",
			Help: "Last total_unseen_count pushed by the server.",
		}),
		sendsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_queued_total",
			Help: "Outgoing messages queued because the channel was not open.",
		}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpcs_handled_total",
			Help: "Local API calls by method and status code.",
		}, []string{"method", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rpc_duration_seconds",
			Help:    "Local API unary call latency.",
			Buckets: []float64{.001, .005, .025, .1, .5, 2, 10, 30},
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.framesReceived, m.framesDropped, m.connects, m.channelOpen, m.alerts, m.unseen, m.sendsQueued, m.rpcs, m.rpcLatency)
	}
	return m
}

// FrameReceived counts one frame read from a channel.
func (m *Metrics) FrameReceived(purpose string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(purpose).Inc()
}

// FrameDropped counts one malformed frame.
func (m *Metrics) FrameDropped(purpose string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(purpose).Inc()
}

// ConnectAttempt records the outcome of an open attempt ("ok" or an error kind).
func (m *Metrics) ConnectAttempt(purpose, result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(purpose, result).Inc()
}

// SetChannelOpen flips the open gauge for a purpose.
func (m *Metrics) SetChannelOpen(purpose string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.channelOpen.WithLabelValues(purpose).Set(v)
}

// AlertRaised counts one unseen-count alert.
func (m *Metrics) AlertRaised() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

// SetUnseen records the latest server unseen count.
func (m *Metrics) SetUnseen(n int) {
	if m == nil {
		return
	}
	m.unseen.Set(float64(n))
}

// SendQueued counts one message parked in the outbox.
func (m *Metrics) SendQueued() {
	if m == nil {
		return
	}
	m.sendsQueued.Inc()
}

// RPCHandled records one finished local API call. Streams pass a zero d.
func (m *Metrics) RPCHandled(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(method, code).Inc()
	if d > 0 {
		m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}

// Server serves /metrics for a gatherer.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer prepares a /metrics listener on addr. It does not listen until Start.
func NewServer(addr string, g prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics listener starting", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
