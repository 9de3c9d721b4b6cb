package observability

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"
)

// Metrics groups the node's prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be used without a registry.
type Metrics struct {
    reg *prometheus.Registry

    events       *prometheus.CounterVec
    decodeErrors prometheus.Counter
    commands     *prometheus.CounterVec
    dropped      *prometheus.CounterVec
    tableEntries prometheus.Gauge
    connections  prometheus.Gauge
    frames       *prometheus.CounterVec
    bytes        *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a fresh registry.
func NewMetrics() *Metrics {
    m := &Metrics{
        reg: prometheus.NewRegistry(),
        events: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "dispatch", Name: "events_total",
            Help: "Events handled by the dispatcher, by kind.",
        }, []string{"kind"}),
        decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "gossip", Name: "decode_errors_total",
            Help: "Gossip payloads that failed to decode and were skipped.",
        }),
        commands: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "bridge", Name: "commands_total",
            Help: "Commands routed by the service adapter, by kind.",
        }, []string{"kind"}),
        dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "bridge", Name: "dropped_total",
            Help: "Items dropped because a bounded queue was full.",
        }, []string{"queue"}),
        tableEntries: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "p2p", Subsystem: "gossip", Name: "table_entries",
            Help: "Entries in the peer address table.",
        }),
        connections: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "p2p", Subsystem: "net", Name: "connections",
            Help: "Open connections.",
        }),
        frames: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "net", Name: "frames_total",
            Help: "Frames exchanged, by direction.",
        }, []string{"dir"}),
        bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "p2p", Subsystem: "net", Name: "bytes_total",
            Help: "Frame bytes exchanged, by direction.",
        }, []string{"dir"}),
    }
    m.reg.MustRegister(m.events, m.decodeErrors, m.commands, m.dropped, m.tableEntries, m.connections, m.frames, m.bytes)
    return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
    if m == nil {
        return nil
    }
    return m.reg
}

// RegisterQueueDepth publishes a gauge sampled from depth on every scrape.
func (m *Metrics) RegisterQueueDepth(queue string, depth func() int) {
    if m == nil {
        return
    }
    m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
        Namespace: "p2p", Subsystem: "bridge", Name: "queue_depth",
        Help:        "Items waiting in a bridge queue.",
        ConstLabels: prometheus.Labels{"queue": queue},
    }, func() float64 { return float64(depth()) }))
}

func (m *Metrics) Event(kind string) {
    if m != nil { m.events.WithLabelValues(kind).Inc() }
}

func (m *Metrics) DecodeError() {
    if m != nil { m.decodeErrors.Inc() }
}

func (m *Metrics) Command(kind string) {
    if m != nil { m.commands.WithLabelValues(kind).Inc() }
}

func (m *Metrics) Dropped(queue string) {
    if m != nil { m.dropped.WithLabelValues(queue).Inc() }
}

func (m *Metrics) TableSize(n int) {
    if m != nil { m.tableEntries.Set(float64(n)) }
}

func (m *Metrics) Connections(n int) {
    if m != nil { m.connections.Set(float64(n)) }
}

func (m *Metrics) Frame(dir string, size int) {
    if m == nil { return }
    m.frames.WithLabelValues(dir).Inc()
    m.bytes.WithLabelValues(dir).Add(float64(size))
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
    srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

    errCh := make(chan error, 1)
    go func() { errCh <- srv.ListenAndServe() }()
    zap.L().Info("metrics endpoint", zap.String("addr", addr))

    select {
    case <-ctx.Done():
        shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutCtx)
        return nil
    case err := <-errCh:
        if errors.Is(err, http.ErrServerClosed) {
            return nil
        }
        return err
    }
}
