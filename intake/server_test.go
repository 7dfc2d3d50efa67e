package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/trademanager/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu    sync.Mutex
	ticks []broker.Tick
}

func (r *recordingSink) UpdatePrice(t broker.Tick) error {
	if t.Bid <= 0 {
		return errors.New("bad quote")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
	return nil
}

func newTestServer(t *testing.T, sink TickSink) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	q := NewQueue()
	go serve(ctx, q, func(r *Request) string {
		if r.Err != nil {
			return "Manager: Invalid Signal"
		}
		return "Manager: got " + r.Signal.StrategyID
	})

	s, err := NewServer(ServerConfig{
		Queue:  q,
		Status: func() any { return map[string]any{"state": "UNLOCKED"} },
		Ticks:  sink,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestNewServerRequiresQueue(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServerSignal(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body := post(t, ts.URL+"/signal", `{"strategy_id":"S1","symbol":"EURUSD","action":"BUY"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Manager: got S1", body)

	code, body = post(t, ts.URL+"/signal", `{nope`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Manager: Invalid Signal", body)
}

func TestServerSignalSizeLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	sig := `{"strategy_id":"S1","symbol":"EURUSD","action":"BUY"}`

	code, body := post(t, ts.URL+"/signal", sig+strings.Repeat(" ", maxSignalBytes-len(sig)))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Manager: got S1", body)

	code, body = post(t, ts.URL+"/signal", sig+strings.Repeat(" ", maxSignalBytes-len(sig)+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "Manager: Signal Too Large", body)
}

func TestServerHealthAndStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"UNLOCKED"}`, string(data))
}

func TestServerPaperTicks(t *testing.T) {
	sink := &recordingSink{}
	ts := newTestServer(t, sink)

	code, _ := post(t, ts.URL+"/paper/ticks", `{"symbol":"EURUSD","bid":1.0998,"ask":1.1}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = post(t, ts.URL+"/paper/ticks", `{"symbol":"EURUSD","bid":0,"ask":1.1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = post(t, ts.URL+"/paper/ticks", `{`)
	assert.Equal(t, http.StatusBadRequest, code)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.ticks, 1)
	assert.Equal(t, "EURUSD", sink.ticks[0].Symbol)
	assert.Equal(t, 1.0998, sink.ticks[0].Bid)
	assert.False(t, sink.ticks[0].Time.IsZero())
}

func TestServerPaperTicksDisabled(t *testing.T) {
	ts := newTestServer(t, nil)
	code, _ := post(t, ts.URL+"/paper/ticks", `{"symbol":"EURUSD","bid":1,"ask":1}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServerWebsocketRequestReply(t *testing.T) {
	ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"strategy_id":"`+id+`","symbol":"EURUSD","action":"SELL"}`)))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		mt, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Equal(t, "Manager: got "+id, string(msg))
	}
}
