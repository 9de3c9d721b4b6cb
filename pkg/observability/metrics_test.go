package observability

import (
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/require"
)

func TestMetricsNilSafe(t *testing.T) {
    var m *Metrics
    m.Event("message")
    m.DecodeError()
    m.Dropped("command")
    m.RegisterQueueDepth("event", func() int { return 1 })
    require.Nil(t, m.Registry())
}

func TestMetricsCounters(t *testing.T) {
    m := NewMetrics()
    m.DecodeError()
    m.DecodeError()
    m.Event("message")
    m.TableSize(3)
    m.RegisterQueueDepth("command", func() int { return 7 })

    require.Equal(t, 2.0, testutil.ToFloat64(m.decodeErrors))
    require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("message")))
    require.Equal(t, 3.0, testutil.ToFloat64(m.tableEntries))

    n, err := testutil.GatherAndCount(m.Registry(), "p2p_bridge_queue_depth")
    require.NoError(t, err)
    require.Equal(t, 1, n)
}
