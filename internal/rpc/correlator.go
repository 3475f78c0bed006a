package rpc

import (
	"sync"

	"github.com/glizzus/aether/internal/generator"
)

// Response is the outcome of a single request.
type Response struct {
	Result any
	Err    error
}

// Correlator matches response frames to the requests that are waiting on them.
// Many requests may be outstanding at once; each is resolved independently.
type Correlator struct {
	ids generator.SequenceGenerator

	mu      sync.Mutex
	pending map[uint64]call
	err     error
}

type call struct {
	method string
	ch     chan Response
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[uint64]call)}
}

// Register allocates the next request id and a slot that receives its response.
func (c *Correlator) Register(method string) (uint64, <-chan Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, nil, c.err
	}

	id, _ := c.ids.Next()
	ch := make(chan Response, 1)
	c.pending[id] = call{method: method, ch: ch}
	return id, ch, nil
}

// Resolve delivers f to the request it answers. It reports false when no
// request with that id is outstanding, in which case the frame is dropped.
func (c *Correlator) Resolve(f Frame) bool {
	c.mu.Lock()
	pending, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	if f.HasError {
		pending.ch <- Response{Err: &RemoteError{Method: pending.method, Payload: f.Error}}
	} else {
		pending.ch <- Response{Result: f.Result}
	}
	return true
}

// Cancel forgets the request. A response arriving later is dropped.
func (c *Correlator) Cancel(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Fail rejects every outstanding request with err. Later calls to Register
// fail with the same error.
func (c *Correlator) Fail(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	pending := c.pending
	c.pending = make(map[uint64]call)
	c.mu.Unlock()

	for _, p := range pending {
		p.ch <- Response{Err: err}
	}
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
