package completion

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/interopmesh/core"
)

// Pending is an outbound call awaiting its completion report.
type Pending struct {
	ID         int64
	Identifier string
	ResultType reflect.Type
	Future     *core.Future
	Issued     time.Time
}

// Table holds pending outbound calls keyed by correlation id. Every entry is
// removed exactly once, by Take, and reports for ids no longer present are
// orphans the caller should ignore. Safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	calls  map[int64]*Pending
	nextID atomic.Int64
}

// NewTable creates an empty pending-call table.
func NewTable() *Table {
	return &Table{calls: make(map[int64]*Pending)}
}

// Add registers a new outbound call and returns it with a fresh correlation id.
func (t *Table) Add(identifier string, resultType reflect.Type) *Pending {
	p := &Pending{
		ID:         t.nextID.Add(1),
		Identifier: identifier,
		ResultType: resultType,
		Future:     core.NewFuture(),
		Issued:     time.Now(),
	}

	t.mu.Lock()
	t.calls[p.ID] = p
	t.mu.Unlock()

	return p
}

// Take removes and returns the call with the given id.
func (t *Table) Take(id int64) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return p, ok
}

// Len returns the number of calls still pending.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// FailAll removes every pending call and rejects its future with err.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]*Pending)
	t.mu.Unlock()

	for _, p := range calls {
		p.Future.Reject(err)
	}
	return len(calls)
}
