package state

import (
	"sync"

	"github.com/roach88/nexus/internal/ir"
)

// Listener receives the newly selected projection and the version of the
// write that produced it. The snapshot is a private copy.
type Listener func(version uint64, selected ir.Snapshot)

type subscription struct {
	sel  Selector
	fn   Listener
	last string
}

type notification struct {
	fn       Listener
	version  uint64
	selected ir.Snapshot
}

// Container is the domain state store.
type Container struct {
	mu     sync.Mutex
	state  State
	subs   map[int]*subscription
	nextID int
}

// NewContainer creates a container with empty lists and the default view.
func NewContainer() *Container {
	return &Container{
		state: State{Data: ir.EmptySnapshot(), View: DefaultView()},
		subs:  make(map[int]*subscription),
	}
}

// State returns a copy of the current state.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// GetSnapshot returns a copy of the synchronizable fields.
func (c *Container) GetSnapshot() ir.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Data.Clone()
}

// SetSnapshot replaces every synchronizable field in one write. The view is
// left alone. It returns the version of the write.
func (c *Container) SetSnapshot(s ir.Snapshot) uint64 {
	version, _ := c.Update(func(st *State) error {
		st.Data = s.Clone()
		return nil
	})
	return version
}

// Update applies fn to a copy of the state and publishes the result. An
// error from fn discards the copy and notifies nobody.
func (c *Container) Update(fn func(*State) error) (uint64, error) {
	c.mu.Lock()
	next := c.state.Clone()
	if err := fn(&next); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	next.Version = c.state.Version + 1
	next.Data = next.Data.Clone()
	c.state = next

	pending := c.collect()
	c.mu.Unlock()

	for _, n := range pending {
		n.fn(n.version, n.selected)
	}
	return next.Version, nil
}

// collect runs with mu held.
func (c *Container) collect() []notification {
	var out []notification
	for _, id := range c.sortedIDs() {
		sub := c.subs[id]
		selected := sub.sel(c.state)
		token := selectionToken(selected)
		if token != "" && token == sub.last {
			continue
		}
		sub.last = token
		out = append(out, notification{
			fn:       sub.fn,
			version:  c.state.Version,
			selected: selected.Clone(),
		})
	}
	return out
}

func (c *Container) sortedIDs() []int {
	ids := make([]int, 0, len(c.subs))
	for id := 0; id < c.nextID; id++ {
		if _, ok := c.subs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Subscribe registers fn to be called whenever the projection chosen by sel
// changes. Listeners run on the writer's goroutine after the container lock
// is released and in subscription order. The returned func unsubscribes and
// is safe to call more than once.
func (c *Container) Subscribe(sel Selector, fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = &subscription{
		sel:  sel,
		fn:   fn,
		last: selectionToken(sel(c.state)),
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Container) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// selectionToken returns "" for selections that cannot be encoded; those
// always notify.
func selectionToken(s ir.Snapshot) string {
	token, err := ir.SnapshotToken(s)
	if err != nil {
		return ""
	}
	return token
}
