package stream

import "sync"

// Tee splits one event stream into two independently-consumable branches.
// The producer never blocks on either consumer: each branch buffers published
// events until its consumer drains them, so a slow persistence consumer
// cannot throttle the live response and vice versa. Buffering is bounded in
// practice by one turn's output.
type Tee struct {
	branches [2]*Branch
}

// NewTee returns a tee plus its two branches, one per consumer.
func NewTee() (*Tee, *Branch, *Branch) {
	t := &Tee{}
	for i := range t.branches {
		b := &Branch{}
		b.cond = sync.NewCond(&b.mu)
		t.branches[i] = b
	}
	return t, t.branches[0], t.branches[1]
}

// Publish delivers ev to both branches in arrival order.
func (t *Tee) Publish(ev Event) {
	for _, b := range t.branches {
		b.push(ev)
	}
}

// Close marks the stream complete. err is surfaced to consumers after they
// drain remaining events; nil means clean termination.
func (t *Tee) Close(err error) {
	for _, b := range t.branches {
		b.close(err)
	}
}

// Branch is one consumer's view of the tee'd stream.
type Branch struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	closed bool
	err    error
}

func (b *Branch) push(ev Event) {
	b.mu.Lock()
	b.buf = append(b.buf, ev)
	b.mu.Unlock()
	b.cond.Signal()
}

func (b *Branch) close(err error) {
	b.mu.Lock()
	b.closed = true
	b.err = err
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Next blocks until an event is available or the stream is closed and
// drained. ok is false once the branch is exhausted.
func (b *Branch) Next() (ev Event, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) == 0 && !b.closed {
		b.cond.Wait()
	}

	if len(b.buf) == 0 {
		return Event{}, false
	}

	ev = b.buf[0]
	b.buf = b.buf[1:]
	return ev, true
}

// Err returns the producer's terminal error, valid after Next reports
// exhaustion.
func (b *Branch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
