package oauth

import (
	"context"
	"sort"
	"sync"
	"time"

	"notebridge/pkg/logging"
)

// sweepInterval is how often the background sweep purges expired records.
const sweepInterval = 60 * time.Second

// Store is the in-memory registry behind the authorization server: OAuth
// clients, one-time authorization codes, access and refresh tokens,
// pending authorizations, and per-user plugin bindings.
//
// One mutex guards all maps; consumption of one-time records deletes under
// the same lock that reads them, so exactly one caller ever sees success
// for a given code or refresh token.
type Store struct {
	mu sync.Mutex

	clients       map[string]*Client
	codes         map[string]*AuthorizationCode
	accessTokens  map[string]*AccessToken
	refreshTokens map[string]*RefreshToken
	pendingAuths  map[string]*PendingAuth
	pluginTokens  map[string]*PluginToken
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		clients:       make(map[string]*Client),
		codes:         make(map[string]*AuthorizationCode),
		accessTokens:  make(map[string]*AccessToken),
		refreshTokens: make(map[string]*RefreshToken),
		pendingAuths:  make(map[string]*PendingAuth),
		pluginTokens:  make(map[string]*PluginToken),
	}
}

// SaveClient stores a registered client.
func (s *Store) SaveClient(c *Client) {
	s.mu.Lock()
	s.clients[c.ClientID] = c
	s.mu.Unlock()
}

// GetClient looks up a client by id.
func (s *Store) GetClient(id string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

// SaveAuthorizationCode stores a freshly minted code.
func (s *Store) SaveAuthorizationCode(code *AuthorizationCode) {
	s.mu.Lock()
	s.codes[code.Code] = code
	s.mu.Unlock()
}

// ConsumeAuthorizationCode atomically removes and returns a code. A second
// consumption of the same code misses: exactly-once redemption.
func (s *Store) ConsumeAuthorizationCode(code string) (*AuthorizationCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	delete(s.codes, code)
	if time.Now().After(record.ExpiresAt) {
		return nil, false
	}
	return record, true
}

// SaveAccessToken stores an access token.
func (s *Store) SaveAccessToken(t *AccessToken) {
	s.mu.Lock()
	s.accessTokens[t.Token] = t
	s.mu.Unlock()
}

// GetAccessToken looks up a live access token. Expired tokens are removed
// on lookup and reported as absent.
func (s *Store) GetAccessToken(token string) (*AccessToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.accessTokens[token]
	if !ok {
		return nil, false
	}
	if record.Expired() {
		delete(s.accessTokens, token)
		return nil, false
	}
	return record, true
}

// RevokeAccessToken removes an access token. Unknown tokens are a no-op so
// revocation never leaks whether a token existed.
func (s *Store) RevokeAccessToken(token string) {
	s.mu.Lock()
	delete(s.accessTokens, token)
	s.mu.Unlock()
}

// SaveRefreshToken stores a refresh token.
func (s *Store) SaveRefreshToken(t *RefreshToken) {
	s.mu.Lock()
	s.refreshTokens[t.Token] = t
	s.mu.Unlock()
}

// ConsumeRefreshToken atomically removes and returns a refresh token,
// revoking the access token it minted under the same lock. The rotation is
// therefore atomic: the old pair is gone before the new pair is observable.
func (s *Store) ConsumeRefreshToken(token string) (*RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[token]
	if !ok {
		return nil, false
	}
	delete(s.refreshTokens, token)
	delete(s.accessTokens, record.AccessToken)
	return record, true
}

// SavePendingAuth stores a pending authorization keyed by upstream state.
func (s *Store) SavePendingAuth(p *PendingAuth) {
	s.mu.Lock()
	s.pendingAuths[p.State] = p
	s.mu.Unlock()
}

// ConsumePendingAuth atomically removes and returns a pending
// authorization. Expired records miss.
func (s *Store) ConsumePendingAuth(state string) (*PendingAuth, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.pendingAuths[state]
	if !ok {
		return nil, false
	}
	delete(s.pendingAuths, state)
	if time.Now().After(record.ExpiresAt) {
		return nil, false
	}
	return record, true
}

// SweepPendingAuths opportunistically drops expired pending records. The
// authorize endpoint calls this on each request.
func (s *Store) SweepPendingAuths() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for state, p := range s.pendingAuths {
		if now.After(p.ExpiresAt) {
			delete(s.pendingAuths, state)
		}
	}
}

// SavePluginToken stores a plugin binding.
func (s *Store) SavePluginToken(t *PluginToken) {
	s.mu.Lock()
	s.pluginTokens[t.ID] = t
	s.mu.Unlock()
}

// GetPluginToken looks up a plugin binding by record id.
func (s *Store) GetPluginToken(id string) (*PluginToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pluginTokens[id]
	return t, ok
}

// DeletePluginToken removes a plugin binding. Returns false if unknown.
func (s *Store) DeletePluginToken(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pluginTokens[id]; !ok {
		return false
	}
	delete(s.pluginTokens, id)
	return true
}

// ListPluginTokens returns all plugin bindings, oldest first.
func (s *Store) ListPluginTokens() []*PluginToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*PluginToken, 0, len(s.pluginTokens))
	for _, t := range s.pluginTokens {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// FindPluginTokenForUser returns the user's active plugin binding: the
// oldest record registered for that user, if any.
func (s *Store) FindPluginTokenForUser(userID string) (*PluginToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *PluginToken
	for _, t := range s.pluginTokens {
		if t.UserID != userID {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) {
			best = t
		}
	}
	return best, best != nil
}

// StartSweeper purges expired access tokens, authorization codes, and
// pending auths every sweepInterval until the context is cancelled.
func (s *Store) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for token, t := range s.accessTokens {
		if now.After(t.ExpiresAt) {
			delete(s.accessTokens, token)
			removed++
		}
	}
	for code, c := range s.codes {
		if now.After(c.ExpiresAt) {
			delete(s.codes, code)
			removed++
		}
	}
	for state, p := range s.pendingAuths {
		if now.After(p.ExpiresAt) {
			delete(s.pendingAuths, state)
			removed++
		}
	}

	if removed > 0 {
		logging.Debug("OAuth", "Swept %d expired records", removed)
	}
}
