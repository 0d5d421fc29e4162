package monitor

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

func newTestServer(t *testing.T, metrics http.Handler) (*Server, *httptest.Server) {
	s := New(Config{}, "raw-power", "loopback", metrics, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t, nil)
	s.Observe(bridge.Event{Kind: bridge.EventRaw})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, "ok", st.Status)
	require.Equal(t, "raw-power", st.Mode)
	require.Equal(t, "loopback", st.Port)
	require.Equal(t, uint64(1), st.Frames)

	resp, err = http.Post(ts.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	_, ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("portbridge_frames_total 1\n"))
	}))
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, ts = newTestServer(t, nil)
	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	s, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	op := byte(0x8e)
	s.Observe(bridge.Event{Kind: bridge.EventRaw, Mode: "raw-power", Opcode: &op, Result: bridge.ResultIgnored, Payload: []byte{0x8e}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, "raw", got["kind"])
	require.Equal(t, "ignored", got["result"])
	require.Equal(t, float64(0x8e), got["opcode"])
	require.NotContains(t, got, "Payload")

	mt := uint8(3)
	s.Observe(bridge.Event{Kind: bridge.EventCommand, MessageType: &mt, Action: "write", Result: bridge.ResultOK, Written: 2, ResponseType: 1})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, float64(3), got["message_type"])
	require.Equal(t, float64(1), got["response_type"])
	require.Equal(t, float64(2), got["written"])
	require.Equal(t, "write", got["action"])

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestAssets(t *testing.T) {
	s, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.ServeAssets(fstest.MapFS{"index.html": {Data: []byte("<h1>portbridge</h1>")}})
	ts2 := httptest.NewServer(s.Handler())
	defer ts2.Close()

	resp, err = http.Get(ts2.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "portbridge")
}
