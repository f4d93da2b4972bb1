package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

type recorded struct {
	version uint64
	ids     []string
}

func record(calls *[]recorded) Listener {
	return func(version uint64, s ir.Snapshot) {
		*calls = append(*calls, recorded{version: version, ids: taskIDs(s)})
	}
}

func taskIDs(s ir.Snapshot) []string {
	ids := make([]string, 0, len(s.Tasks))
	for _, item := range s.Tasks {
		id, _ := item["id"].(ir.IRString)
		ids = append(ids, string(id))
	}
	return ids
}

func withTasks(ids ...string) ir.Snapshot {
	s := ir.EmptySnapshot()
	for _, id := range ids {
		s.Tasks = append(s.Tasks, ir.Item(id))
	}
	return s
}

func TestContainer_NewIsEmpty(t *testing.T) {
	c := NewContainer()
	st := c.State()

	assert.Equal(t, uint64(0), st.Version)
	assert.Equal(t, ir.EmptySnapshot(), st.Data)
	assert.Equal(t, DefaultView(), st.View)
}

func TestContainer_SetSnapshotNotifies(t *testing.T) {
	c := NewContainer()
	var calls []recorded
	c.Subscribe(SyncSelector, record(&calls))

	v := c.SetSnapshot(withTasks("t1", "t2"))

	require.Len(t, calls, 1)
	assert.Equal(t, v, calls[0].version)
	assert.Equal(t, []string{"t1", "t2"}, calls[0].ids)
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(c.GetSnapshot()))
}

func TestContainer_ViewChangeDoesNotNotifySyncSubscribers(t *testing.T) {
	c := NewContainer()
	var calls []recorded
	c.Subscribe(SyncSelector, record(&calls))

	v, err := c.Update(func(s *State) error {
		s.View.FocusMode = true
		s.View.CurrentModule = ModuleTasks
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), v)
	assert.Empty(t, calls)
	assert.True(t, c.State().View.FocusMode)
}

func TestContainer_IdenticalWriteDoesNotNotify(t *testing.T) {
	c := NewContainer()
	c.SetSnapshot(withTasks("t1"))

	var calls []recorded
	c.Subscribe(SyncSelector, record(&calls))
	c.SetSnapshot(withTasks("t1"))

	assert.Empty(t, calls)
	assert.Equal(t, uint64(2), c.State().Version, "the write still counts")
}

func TestContainer_UpdateErrorDiscards(t *testing.T) {
	c := NewContainer()
	var calls []recorded
	c.Subscribe(SyncSelector, record(&calls))

	boom := errors.New("boom")
	_, err := c.Update(func(s *State) error {
		s.Data.Tasks = append(s.Data.Tasks, ir.Item("t1"))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, calls)
	assert.Empty(t, c.GetSnapshot().Tasks)
	assert.Equal(t, uint64(0), c.State().Version)
}

func TestContainer_Unsubscribe(t *testing.T) {
	c := NewContainer()
	var calls []recorded
	unsubscribe := c.Subscribe(SyncSelector, record(&calls))
	assert.Equal(t, 1, c.Subscribers())

	unsubscribe()
	unsubscribe()
	c.SetSnapshot(withTasks("t1"))

	assert.Empty(t, calls)
	assert.Equal(t, 0, c.Subscribers())
}

func TestContainer_CustomSelector(t *testing.T) {
	c := NewContainer()
	financesOnly := func(s State) ir.Snapshot {
		out := ir.EmptySnapshot()
		out.Finances = s.Data.Finances
		return out
	}

	var calls []recorded
	c.Subscribe(financesOnly, record(&calls))

	c.SetSnapshot(withTasks("t1"))
	assert.Empty(t, calls, "tasks are outside the selection")

	_, err := c.Update(func(s *State) error {
		s.Data.Finances.Income = append(s.Data.Finances.Income, ir.Item("i1"))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestContainer_ReturnsCopies(t *testing.T) {
	c := NewContainer()
	in := withTasks("t1")
	c.SetSnapshot(in)
	in.Tasks[0]["id"] = ir.IRString("mutated")

	got := c.GetSnapshot()
	got.Tasks[0]["title"] = ir.IRString("mutated")

	assert.Equal(t, ir.Item("t1"), c.GetSnapshot().Tasks[0])
}

func TestContainer_ListenerMayReadContainer(t *testing.T) {
	c := NewContainer()
	var seen []string
	c.Subscribe(SyncSelector, func(uint64, ir.Snapshot) {
		seen = taskIDs(c.GetSnapshot())
	})

	c.SetSnapshot(withTasks("t1"))
	assert.Equal(t, []string{"t1"}, seen)
}

func TestContainer_ConcurrentWritersVersionsAreUnique(t *testing.T) {
	c := NewContainer()
	var mu sync.Mutex
	versions := make(map[uint64]bool)
	c.Subscribe(SyncSelector, func(v uint64, _ ir.Snapshot) {
		mu.Lock()
		versions[v] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.SetSnapshot(withTasks(string(rune('a' + i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(20), c.State().Version)
	mu.Lock()
	defer mu.Unlock()
	for v := range versions {
		assert.True(t, v >= 1 && v <= 20)
	}
}
