package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/batchrun/batch"
)

// ErrPoolEmpty is wrapped with batch.ErrResourceExhausted when no connection
// is released within the pool's wait.
var ErrPoolEmpty = errors.New("demo: no free connection")

// ErrConnBroken is returned by a connection that failed permanently.
var ErrConnBroken = errors.New("demo: connection broken")

// Index is the shared destination of the demo job: document id -> version.
type Index struct {
	mu   sync.Mutex
	docs map[string]int
}

func NewIndex() *Index {
	return &Index{docs: make(map[string]int)}
}

// Len returns the number of distinct documents indexed.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.docs)
}

// Version returns the stored version of id.
func (ix *Index) Version(id string) (int, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	v, ok := ix.docs[id]
	return v, ok
}

// Conn is a connection to the Index held by one worker at a time.
type Conn struct {
	ID int

	index  *Index
	broken bool
}

// Put stores version for id, keeping the highest version seen. created is true
// when id was not yet indexed.
func (c *Conn) Put(ctx context.Context, id string, version int) (created bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.broken {
		return false, fmt.Errorf("%w: conn %d", ErrConnBroken, c.ID)
	}

	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	prev, ok := c.index.docs[id]
	if !ok || version > prev {
		c.index.docs[id] = version
	}
	return !ok, nil
}

// Pool is a fixed set of connections and the batch.Acquirer of the demo job.
// It may hold fewer connections than there are workers: Acquire then parks
// until another worker releases one.
type Pool struct {
	free  chan *Conn
	wait  time.Duration
	inUse atomic.Int32
}

var _ batch.Acquirer[*Conn] = (*Pool)(nil)

// NewPool creates size connections to index. A positive wait bounds how long
// Acquire parks for a free connection before reporting the pool exhausted;
// zero or less waits until a release or the context ends.
func NewPool(index *Index, size int, wait time.Duration) *Pool {
	p := &Pool{free: make(chan *Conn, max(size, 0)), wait: wait}
	for id := range size {
		p.free <- &Conn{ID: id, index: index}
	}
	return p
}

func (p *Pool) Acquire(ctx context.Context, _ int) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case c := <-p.free:
		p.inUse.Add(1)
		return c, nil
	default:
	}

	var timeout <-chan time.Time
	if p.wait > 0 {
		t := time.NewTimer(p.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case c := <-p.free:
		p.inUse.Add(1)
		return c, nil
	case <-timeout:
		return nil, batch.Exhausted(fmt.Errorf("%w after %v", ErrPoolEmpty, p.wait))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.inUse.Add(-1)
	p.free <- c
}

// InUse returns how many connections are currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}
