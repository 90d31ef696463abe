package transport

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"notebridge/pkg/logging"
)

const (
	// DefaultIdleTimeout is how long a session may sit idle before the
	// sweeper reclaims it. The protocol minimum is 30 minutes.
	DefaultIdleTimeout = 30 * time.Minute

	// sweepInterval is how often the idle sweeper runs.
	sweepInterval = 60 * time.Second

	// notifyBufferSize bounds the per-session notification backlog while no
	// SSE stream is attached.
	notifyBufferSize = 32
)

// Session is one MCP session: a transport binding identified by a
// cryptographically random, URL-safe id. The gateway additionally records
// the authenticated user and the bound upstream session.
type Session struct {
	ID        string
	CreatedAt time.Time

	// UserID is the resolved user for gateway sessions; empty on the bridge.
	UserID string

	// reqMu serialises request handling within the session so responses are
	// emitted in the order requests were accepted.
	reqMu sync.Mutex

	mu            sync.Mutex
	lastActive    time.Time
	initialized   bool
	closed        bool
	preconditions map[string]bool
	upstreamID    string

	// notify carries server-to-client notifications to the SSE stream. The
	// channel is never closed; done signals teardown instead, so a send
	// racing a close cannot panic.
	notify chan *Notification
	done   chan struct{}
}

// Lock serialises request handling for this session.
func (s *Session) Lock() { s.reqMu.Lock() }

// Unlock releases the per-session request lock.
func (s *Session) Unlock() { s.reqMu.Unlock() }

// Touch records activity, deferring idle reclamation.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// MarkInitialized records a successful initialize exchange. Returns false
// if the session was already initialized; a second initialize on an
// established session is a protocol error.
func (s *Session) MarkInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}
	s.initialized = true
	return true
}

// Initialized reports whether the initialize exchange has completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// PreconditionSatisfied implements tools.PreconditionState.
func (s *Session) PreconditionSatisfied(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preconditions[name]
}

// SatisfyPrecondition implements tools.PreconditionState. Flags are never
// cleared within the session.
func (s *Session) SatisfyPrecondition(name string) {
	s.mu.Lock()
	s.preconditions[name] = true
	s.mu.Unlock()
}

// SetUpstreamID binds the upstream MCP session id for this session.
func (s *Session) SetUpstreamID(id string) {
	s.mu.Lock()
	s.upstreamID = id
	s.mu.Unlock()
}

// UpstreamID returns the bound upstream MCP session id, if any.
func (s *Session) UpstreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamID
}

// Notify queues a notification for delivery over the session's SSE stream.
// If the backlog is full the oldest pending notification is dropped;
// listChanged semantics only require firing at least once after a change.
func (s *Session) Notify(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.notify <- n:
	default:
		select {
		case <-s.notify:
		default:
		}
		select {
		case s.notify <- n:
		default:
		}
	}
}

// Notifications exposes the notification stream for the SSE handler.
func (s *Session) Notifications() <-chan *Notification {
	return s.notify
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SessionTable maps MCP session ids to live sessions and enforces their
// lifecycle: created on initialize, destroyed by DELETE, transport close,
// or idle timeout.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration

	// onClose is invoked after a session is removed, outside the table
	// lock. The gateway uses it to tear down the upstream session.
	onClose func(*Session)
}

// NewSessionTable creates a session table with the given idle timeout.
// A non-positive timeout falls back to the default.
func NewSessionTable(idleTimeout time.Duration) *SessionTable {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &SessionTable{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// SetOnClose registers a hook invoked for every session removed from the
// table. Must be called before the table is in use.
func (t *SessionTable) SetOnClose(hook func(*Session)) {
	t.onClose = hook
}

// Create allocates a new session with a fresh id.
func (t *SessionTable) Create(userID string) *Session {
	now := time.Now()
	s := &Session{
		ID:            newSessionID(),
		CreatedAt:     now,
		UserID:        userID,
		lastActive:    now,
		preconditions: make(map[string]bool),
		notify:        make(chan *Notification, notifyBufferSize),
		done:          make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()

	logging.Debug("Transport", "Session %s created", s.ID)
	return s
}

// Get returns the session for an id, touching its activity clock.
func (t *SessionTable) Get(id string) (*Session, bool) {
	t.mu.RLock()
	s, ok := t.sessions[id]
	t.mu.RUnlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// Remove closes and removes a session. Returns false if the id is unknown.
func (t *SessionTable) Remove(id string) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	s.close()
	logging.Debug("Transport", "Session %s removed", id)
	if t.onClose != nil {
		t.onClose(s)
	}
	return true
}

// Len returns the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Broadcast queues a notification on every live session.
func (t *SessionTable) Broadcast(n *Notification) {
	t.mu.RLock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()

	for _, s := range sessions {
		s.Notify(n)
	}
}

// CloseAll removes every session, running the onClose hook for each.
func (t *SessionTable) CloseAll() {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*Session)
	t.mu.Unlock()

	for _, s := range sessions {
		s.close()
		if t.onClose != nil {
			t.onClose(s)
		}
	}
}

// StartSweeper runs the idle sweep loop until the context is cancelled.
func (t *SessionTable) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *SessionTable) sweep() {
	cutoff := time.Now().Add(-t.idleTimeout)

	t.mu.RLock()
	var expired []string
	for id, s := range t.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	t.mu.RUnlock()

	for _, id := range expired {
		logging.Info("Transport", "Session %s expired after idle timeout", id)
		t.Remove(id)
	}
}

// newSessionID returns a cryptographically random, URL-safe session id.
// 32 random bytes keep the id unguessable and unambiguous in HTTP headers.
func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken; there
		// is no reasonable recovery for session id generation.
		panic("transport: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
