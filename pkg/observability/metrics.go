package observability

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "buildnode/pkg/packet"
)

// Metrics holds the node pool collectors. It implements node.Counters.
type Metrics struct {
    gat prometheus.Gatherer

    NodesLive        prometheus.Gauge
    NodesLaunched    prometheus.Counter
    NodesReclaimed   prometheus.Counter
    NodesTerminated  *prometheus.CounterVec // reason: graceful, forced, reusable
    LaunchFailures   prometheus.Counter
    HandshakeResults *prometheus.CounterVec // result: ok, mismatch, timeout, error
    HandshakeSeconds prometheus.Histogram
    PacketsSent      *prometheus.CounterVec
    PacketsReceived  *prometheus.CounterVec
    IdleNodes        prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg. A nil reg gets a
// private registry, which keeps tests and embedded pools independent.
func NewMetrics(reg *prometheus.Registry) *Metrics {
    if reg == nil { reg = prometheus.NewRegistry() }
    m := &Metrics{
        gat: reg,
        NodesLive: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "buildnode", Subsystem: "pool", Name: "nodes_live",
            Help: "Nodes currently registered with the pool.",
        }),
        NodesLaunched: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "pool", Name: "nodes_launched_total",
            Help: "Node processes started by the pool.",
        }),
        NodesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "pool", Name: "nodes_reclaimed_total",
            Help: "Idle nodes reconnected instead of launched.",
        }),
        NodesTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "pool", Name: "nodes_terminated_total",
            Help: "Node terminations by outcome.",
        }, []string{"reason"}),
        LaunchFailures: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "pool", Name: "launch_failures_total",
            Help: "Launches that never produced a connected node.",
        }),
        HandshakeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "handshake", Name: "results_total",
            Help: "Handshake attempts by result.",
        }, []string{"result"}),
        HandshakeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
            Namespace: "buildnode", Subsystem: "handshake", Name: "duration_seconds",
            Help:    "Time from connect to a completed handshake.",
            Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
        }),
        PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "link", Name: "packets_sent_total",
            Help: "Packets written to nodes by type.",
        }, []string{"type"}),
        PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "buildnode", Subsystem: "link", Name: "packets_received_total",
            Help: "Packets read from nodes by type.",
        }, []string{"type"}),
        IdleNodes: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "buildnode", Subsystem: "catalog", Name: "idle_nodes",
            Help: "Idle reusable nodes in the catalog.",
        }),
    }
    reg.MustRegister(m.NodesLive, m.NodesLaunched, m.NodesReclaimed, m.NodesTerminated, m.LaunchFailures,
        m.HandshakeResults, m.HandshakeSeconds, m.PacketsSent, m.PacketsReceived, m.IdleNodes)
    return m
}

func (m *Metrics) PacketSent(t packet.Type)     { m.PacketsSent.WithLabelValues(t.String()).Inc() }
func (m *Metrics) PacketReceived(t packet.Type) { m.PacketsReceived.WithLabelValues(t.String()).Inc() }

// ObserveHandshake records one handshake attempt.
func (m *Metrics) ObserveHandshake(result string, d time.Duration) {
    m.HandshakeResults.WithLabelValues(result).Inc()
    if result == "ok" { m.HandshakeSeconds.Observe(d.Seconds()) }
}

// Handler serves the collectors of this Metrics.
func (m *Metrics) Handler() http.Handler { return promhttp.HandlerFor(m.gat, promhttp.HandlerOpts{}) }

// ServeMetrics exposes m on addr under /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *Metrics) error {
    mux := http.NewServeMux()
    mux.Handle("/metrics", m.Handler())
    srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        <-ctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = srv.Shutdown(sctx)
    }()
    zap.L().Info("metrics listening", zap.String("addr", addr))
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) { return err }
    return nil
}
