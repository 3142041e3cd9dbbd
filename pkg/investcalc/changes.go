package investcalc

import "sync"

// ChangeKind names the mutation that modified the ledger.
type ChangeKind string

const (
	ChangeRecord ChangeKind = "record"
	ChangeDelete ChangeKind = "delete"
	ChangeImport ChangeKind = "import"
)

// LedgerChange is published after every successful ledger mutation.
// Views holding derived state must rebuild when they receive one.
type LedgerChange struct {
	Kind   ChangeKind `json:"kind"`
	Stocks []string   `json:"stocks,omitempty"`
	Rows   int        `json:"rows"`
}

type changeFeed struct {
	mu     sync.Mutex
	subs   map[int]chan LedgerChange
	nextID int
	closed bool
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: map[int]chan LedgerChange{}}
}

// Subscribe returns a channel receiving ledger changes and a function that
// cancels the subscription. The channel holds one pending change; when the
// subscriber lags, newer changes replace the pending one, so a reader never
// misses that the ledger changed.
func (c *Core) Subscribe() (<-chan LedgerChange, func()) {
	return c.changes.subscribe()
}

func (f *changeFeed) subscribe() (<-chan LedgerChange, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan LedgerChange, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

func (f *changeFeed) publish(change LedgerChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- change:
			continue
		default:
		}
		// Replace the stale pending change.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- change:
		default:
		}
	}
}

func (f *changeFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
