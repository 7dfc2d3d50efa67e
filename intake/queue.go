package intake

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/trademanager/internal/id"
)

// Request is one inbound signal waiting for its reply. Err is set when the
// payload could not be decoded; the manager still decides the reply so that
// a locked system answers with the lock rejection first.
type Request struct {
	ID       string
	Signal   Signal
	Err      error
	Received time.Time

	once  sync.Once
	reply chan string
}

func NewRequest(raw []byte) *Request {
	sig, err := DecodeSignal(raw)
	return &Request{
		ID:       id.New(),
		Signal:   sig,
		Err:      err,
		Received: time.Now(),
		reply:    make(chan string, 1),
	}
}

// Respond delivers the reply. Only the first call has any effect; it
// reports whether this call was the one that answered.
func (r *Request) Respond(reply string) bool {
	sent := false
	r.once.Do(func() {
		r.reply <- reply
		sent = true
	})
	return sent
}

// Wait blocks for the reply.
func (r *Request) Wait(ctx context.Context) (string, error) {
	select {
	case msg := <-r.reply:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Queue hands requests from any number of transport goroutines to the single
// manager loop. It has no buffer: a request is in the loop's hands or still
// with its sender.
type Queue struct {
	ch chan *Request
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan *Request)}
}

// Submit decodes raw, waits for the loop to take it and returns the reply.
func (q *Queue) Submit(ctx context.Context, raw []byte) (string, error) {
	req := NewRequest(raw)
	select {
	case q.ch <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return req.Wait(ctx)
}

// Poll returns the next request, or false when none arrives within timeout.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (*Request, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case req := <-q.ch:
		return req, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
