package observability

import (
    "bytes"
    "context"
    "io"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "buildnode/pkg/config"
    "buildnode/pkg/packet"
)

func TestMetricsCounters(t *testing.T) {
    m := NewMetrics(nil)
    m.PacketSent(packet.TypePayload)
    m.PacketSent(packet.TypePayload)
    m.PacketReceived(packet.TypeNodeShutdown)
    m.ObserveHandshake("ok", 3*time.Millisecond)
    m.ObserveHandshake("mismatch", 0)

    assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsSent.WithLabelValues(packet.TypePayload.String())))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsReceived.WithLabelValues(packet.TypeNodeShutdown.String())))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakeResults.WithLabelValues("mismatch")))
    assert.Equal(t, 1, testutil.CollectAndCount(m.HandshakeSeconds))
}

func TestMetricsIndependentRegistries(t *testing.T) {
    a, b := NewMetrics(nil), NewMetrics(nil)
    a.NodesLaunched.Inc()
    assert.Equal(t, 0.0, testutil.ToFloat64(b.NodesLaunched))
}

func TestMetricsHandler(t *testing.T) {
    m := NewMetrics(nil)
    m.NodesLive.Set(3)
    rec := httptest.NewRecorder()
    m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
    body, _ := io.ReadAll(rec.Body)
    assert.Contains(t, string(body), "buildnode_pool_nodes_live 3")
}

func TestSetupLoggerFile(t *testing.T) {
    prev := zap.L()
    defer zap.ReplaceGlobals(prev)

    path := filepath.Join(t.TempDir(), "logs", "bn.log")
    logger, err := SetupLogger(config.LogConfig{Level: "debug", Format: "json", Outputs: []string{path}})
    require.NoError(t, err)
    zap.L().Debug("node ready", zap.Int("node_id", 7))
    _ = logger.Sync()

    raw, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Contains(t, string(raw), `"node_id":7`)
    assert.True(t, strings.HasPrefix(string(raw), "{"))
}

func TestParseLevel(t *testing.T) {
    assert.Equal(t, zap.WarnLevel, parseLevel("WARNING"))
    assert.Equal(t, zap.InfoLevel, parseLevel("bogus"))
}

func TestSetupTracing(t *testing.T) {
    var buf bytes.Buffer
    shutdown, err := SetupTracing(&buf, false)
    require.NoError(t, err)
    _, span := Tracer().Start(context.Background(), "provider.create_node")
    span.SetAttributes(NodeID(2))
    span.End()
    require.NoError(t, shutdown(context.Background()))
    assert.Contains(t, buf.String(), "provider.create_node")
    assert.Contains(t, buf.String(), "buildnode.node.id")
}
