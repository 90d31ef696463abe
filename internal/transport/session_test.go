package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTable_CreateAndGet(t *testing.T) {
	table := NewSessionTable(0)

	s := table.Create("user-1")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "user-1", s.UserID)

	got, ok := table.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = table.Get("no-such-session")
	assert.False(t, ok)
}

func TestSessionTable_IDsAreUniqueAndURLSafe(t *testing.T) {
	table := NewSessionTable(0)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		s := table.Create("")
		require.False(t, seen[s.ID], "duplicate session id %s", s.ID)
		seen[s.ID] = true

		for _, c := range s.ID {
			valid := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
			require.True(t, valid, "session id %q contains non-URL-safe rune %q", s.ID, c)
		}
	}
}

func TestSessionTable_RemoveClosesAndRunsHook(t *testing.T) {
	table := NewSessionTable(0)

	var closed []string
	table.SetOnClose(func(s *Session) { closed = append(closed, s.ID) })

	s := table.Create("")
	require.True(t, table.Remove(s.ID))
	assert.Equal(t, []string{s.ID}, closed)

	_, ok := table.Get(s.ID)
	assert.False(t, ok)

	// Second remove of the same id is a miss.
	assert.False(t, table.Remove(s.ID))
}

func TestSessionTable_SweepReclaimsIdleSessions(t *testing.T) {
	table := NewSessionTable(10 * time.Millisecond)

	idle := table.Create("")
	active := table.Create("")

	time.Sleep(20 * time.Millisecond)
	active.Touch()
	table.sweep()

	_, ok := table.Get(idle.ID)
	assert.False(t, ok, "idle session should be reclaimed")
	_, ok = table.Get(active.ID)
	assert.True(t, ok, "touched session should survive")
}

func TestSession_MarkInitializedOnce(t *testing.T) {
	table := NewSessionTable(0)
	s := table.Create("")

	assert.True(t, s.MarkInitialized())
	assert.False(t, s.MarkInitialized(), "second initialize must be rejected")
	assert.True(t, s.Initialized())
}

func TestSession_PreconditionFlagsPersist(t *testing.T) {
	table := NewSessionTable(0)
	s := table.Create("")

	assert.False(t, s.PreconditionSatisfied("read_note"))
	s.SatisfyPrecondition("read_note")
	assert.True(t, s.PreconditionSatisfied("read_note"))
}

func TestSessionTable_BroadcastReachesAllSessions(t *testing.T) {
	table := NewSessionTable(0)
	s1 := table.Create("")
	s2 := table.Create("")

	table.Broadcast(NewNotification(MethodToolsListChanged, nil))

	for _, s := range []*Session{s1, s2} {
		select {
		case n := <-s.Notifications():
			assert.Equal(t, MethodToolsListChanged, n.Method)
		default:
			t.Fatalf("session %s received no notification", s.ID)
		}
	}
}

func TestSession_NotifyAfterCloseIsSafe(t *testing.T) {
	table := NewSessionTable(0)
	s := table.Create("")
	require.True(t, table.Remove(s.ID))

	// Must be a silent no-op after teardown.
	s.Notify(NewNotification(MethodToolsListChanged, nil))
}

func TestSession_NotifyConcurrentWithRemoveDoesNotPanic(t *testing.T) {
	// A listChanged broadcast racing a DELETE or idle sweep must never kill
	// the notifier goroutine.
	for i := 0; i < 50; i++ {
		table := NewSessionTable(0)
		s := table.Create("")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Notify(NewNotification(MethodToolsListChanged, nil))
			}
		}()
		go func() {
			defer wg.Done()
			table.Remove(s.ID)
		}()
		wg.Wait()
	}
}

func TestSession_DoneSignalsTeardown(t *testing.T) {
	table := NewSessionTable(0)
	s := table.Create("")

	select {
	case <-s.Done():
		t.Fatal("done must not fire before teardown")
	default:
	}

	require.True(t, table.Remove(s.ID))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("done must fire after teardown")
	}
}

func TestSessionTable_CloseAll(t *testing.T) {
	table := NewSessionTable(0)
	table.Create("")
	table.Create("")

	var hooks int
	table.SetOnClose(func(*Session) { hooks++ })
	table.CloseAll()

	assert.Zero(t, table.Len())
	assert.Equal(t, 2, hooks)
}
