package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/packet"
)

var (
	// ErrNameTaken reports a display-name collision at creation, distinct
	// from a bad token so callers can surface the right failure.
	ErrNameTaken = errors.New("session: name already online")

	// ErrTokenInvalid reports a poll with an unknown or expired token.
	ErrTokenInvalid = errors.New("session: token invalid")
)

// RemoveHook runs during Remove, after the session has left the lookup
// tables. Hooks are registered in lock order (match before channel) so a
// cascade never acquires locks against the global order.
type RemoveHook func(s *Session)

// Registry is the sole owner of all connected sessions, indexed by token,
// numeric id and canonical name.
type Registry struct {
	log *zap.Logger

	mu      sync.RWMutex
	byToken map[string]*Session
	byID    map[int32]*Session
	byName  map[string]*Session

	hooks []RemoveHook
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:     log.Named("registry"),
		byToken: make(map[string]*Session),
		byID:    make(map[int32]*Session),
		byName:  make(map[string]*Session),
	}
}

// OnRemove registers a cascade hook. Registration happens during wiring,
// before any session exists.
func (r *Registry) OnRemove(h RemoveHook) {
	r.hooks = append(r.hooks, h)
}

// Create mints a token and registers a new session. Id, name and token
// uniqueness are enforced here; a live session under the same name fails
// with ErrNameTaken.
func (r *Registry) Create(id int32, name string, privileges int32, build string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[SafeName(name)]; ok {
		return nil, ErrNameTaken
	}
	// Ids come from the account store, so a colliding id is the same account
	// already online, possibly under a since-renamed display name. Callers
	// surface both the same way.
	if _, ok := r.byID[id]; ok {
		return nil, ErrNameTaken
	}
	token := uuid.NewString()
	for {
		if _, ok := r.byToken[token]; !ok {
			break
		}
		token = uuid.NewString()
	}
	s := New(id, name, token, privileges, build)
	r.byToken[token] = s
	r.byID[id] = s
	r.byName[SafeName(name)] = s
	r.log.Info("session created", zap.Int32("user_id", id), zap.String("name", name))
	return s, nil
}

func (r *Registry) ByToken(token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	if !ok {
		return nil, ErrTokenInvalid
	}
	return s, nil
}

func (r *Registry) ByID(id int32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *Registry) ByName(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[SafeName(name)]
}

// Active returns a snapshot of every registered session.
func (r *Registry) Active() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Broadcast enqueues pkt on every session the predicate accepts. A nil
// predicate accepts everyone.
func (r *Registry) Broadcast(pred func(*Session) bool, pkt []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if pred == nil || pred(s) {
			s.Enqueue(pkt)
		}
	}
}

// Remove drops a session from the tables, runs the cascade hooks (match
// resignation, spectator teardown, channel parts) and announces the logout
// to everyone still online. Removing an absent id is a no-op.
func (r *Registry) Remove(id int32) bool {
	r.mu.Lock()
	s, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, id)
	delete(r.byToken, s.Token)
	delete(r.byName, SafeName(s.Name))
	r.mu.Unlock()

	if s.Status() == StatusActive {
		s.SetStatus(StatusLoggedOut)
	}
	for _, h := range r.hooks {
		h(s)
	}
	r.Broadcast(nil, packet.UserLogout(id))
	r.log.Info("session removed", zap.Int32("user_id", id), zap.String("name", s.Name))
	return true
}
