package intake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve answers every request until ctx is done.
func serve(ctx context.Context, q *Queue, answer func(*Request) string) {
	for ctx.Err() == nil {
		if req, ok := q.Poll(ctx, 10*time.Millisecond); ok {
			req.Respond(answer(req))
		}
	}
}

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue()
	go serve(ctx, q, func(r *Request) string {
		if r.Err != nil {
			return "bad"
		}
		return "ok " + r.Signal.StrategyID
	})

	reply, err := q.Submit(ctx, []byte(`{"strategy_id":"S1","symbol":"X","action":"BUY"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok S1", reply)

	reply, err = q.Submit(ctx, []byte(`garbage`))
	require.NoError(t, err)
	assert.Equal(t, "bad", reply)
}

func TestQueuePollTimeout(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	start := time.Now()
	req, ok := q.Poll(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, req)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueSubmitWithoutConsumer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewQueue().Submit(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestRespondOnce(t *testing.T) {
	t.Parallel()

	req := NewRequest([]byte(`{"strategy_id":"S1","symbol":"X","action":"BUY"}`))
	require.NoError(t, req.Err)
	assert.Len(t, req.ID, 26)

	assert.True(t, req.Respond("first"))
	assert.False(t, req.Respond("second"))

	reply, err := req.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", reply)
}

func TestRequestDecodeError(t *testing.T) {
	t.Parallel()

	req := NewRequest([]byte(`[1,2`))
	assert.ErrorIs(t, req.Err, ErrInvalidSignal)
}
