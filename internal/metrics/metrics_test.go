package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

func TestBridgeObserve(t *testing.T) {
	m := NewBridge(prometheus.NewRegistry())

	m.Observe(bridge.Event{Kind: bridge.EventReady, Result: bridge.ResultOK, ResponseType: 1})
	m.Observe(bridge.Event{Kind: bridge.EventCommand, Action: "write", Result: bridge.ResultOK, Written: 3, ResponseType: 1})
	m.Observe(bridge.Event{Kind: bridge.EventCommand, Action: "write", Result: bridge.ResultError, ResponseType: 2})
	m.Observe(bridge.Event{Kind: bridge.EventRaw, Action: "power-on", Result: bridge.ResultOK})
	m.Observe(bridge.Event{Kind: bridge.EventRaw, Action: "none", Result: bridge.ResultIgnored})

	require.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(bridge.EventCommand, bridge.ResultOK)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Responses.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Responses.WithLabelValues("error")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SerialBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SerialWriteErrors))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PowerOn))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("write")))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	NewBridge(reg)
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	require.NotNil(t, Handler(reg))
}
