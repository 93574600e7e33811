package connection

import (
	"encoding/json"
	"sync"

	"github.com/networkteam/pwire/protocol"
)

// call is a single-assignment future for one request.
type call struct {
	id     int
	guid   string
	method string

	// abandoned calls have no waiter anymore; their response is consumed and dropped.
	abandoned bool

	done   chan struct{}
	result json.RawMessage
	err    error
}

func (c *call) resolve(result json.RawMessage, err error) {
	c.result = result
	c.err = err
	close(c.done)
}

// pendingCalls maps correlation ids to their futures.
type pendingCalls struct {
	mu        sync.Mutex
	calls     map[int]*call
	closedErr error
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		calls: make(map[int]*call),
	}
}

func (p *pendingCalls) register(c *call) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closedErr != nil {
		return p.closedErr
	}
	p.calls[c.id] = c
	return nil
}

// remove drops a call whose request could not be sent.
func (p *pendingCalls) remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.calls, id)
}

// abandon keeps the entry so the late response is still matched, but nobody waits for it.
func (p *pendingCalls) abandon(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.calls[id]; ok {
		c.abandoned = true
	}
}

// complete resolves the call for a response message exactly once.
// It returns false if no call is pending for the id.
func (p *pendingCalls) complete(msg *protocol.Message) (*call, bool) {
	p.mu.Lock()
	c, ok := p.calls[msg.ID]
	if ok {
		delete(p.calls, msg.ID)
	}
	p.mu.Unlock()

	if !ok {
		return nil, false
	}

	if msg.Error != nil {
		c.resolve(nil, protocol.NewError(msg.Error, msg.Log))
	} else {
		c.resolve(msg.Result, nil)
	}
	return c, true
}

// failAll rejects every pending call and refuses new ones.
func (p *pendingCalls) failAll(err error) {
	p.mu.Lock()
	p.closedErr = err
	calls := p.calls
	p.calls = make(map[int]*call)
	p.mu.Unlock()

	for _, c := range calls {
		c.resolve(nil, err)
	}
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
