package match

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

// Table owns every live room. Rooms are announced to the lobby channel on
// creation and disposal.
type Table struct {
	log         *zap.Logger
	channels    *channel.Table
	lobby       *channel.Channel
	requireMaps bool

	mu      sync.RWMutex
	matches map[int32]*Match
	nextID  int32
}

func NewTable(log *zap.Logger, channels *channel.Table, lobby *channel.Channel, requireMaps bool) *Table {
	return &Table{
		log:         log.Named("matches"),
		channels:    channels,
		lobby:       lobby,
		requireMaps: requireMaps,
		matches:     make(map[int32]*Match),
		nextID:      1,
	}
}

// Create builds a room from a host-supplied settings block, seats the host
// and announces the room to the lobby.
func (t *Table) Create(host *session.Session, data packet.MatchData) (*Match, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	chat := t.channels.Add(channel.New(fmt.Sprintf("#multi_%d", id), "multiplayer room", 0, 0, false, true))
	m := newMatch(id, host, data, chat, t.lobby, t.requireMaps, t.log)
	t.matches[id] = m
	t.mu.Unlock()

	if err := m.Join(host, data.Password); err != nil {
		// The first join of an empty room can only fail on a bug; give the
		// room up rather than leak it.
		t.Dispose(id)
		return nil, err
	}
	t.lobby.Broadcast(packet.NewMatch(m.Data()))
	t.log.Info("match created", zap.Int32("match_id", id), zap.String("name", data.Name), zap.Int32("host", host.ID))
	return m, nil
}

func (t *Table) Get(id int32) *Match {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.matches[id]
}

func (t *Table) All() []*Match {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Match, 0, len(t.matches))
	for _, m := range t.matches {
		out = append(out, m)
	}
	return out
}

// Dispose tears a room down and tells the lobby. Unknown ids are a no-op.
func (t *Table) Dispose(id int32) {
	t.mu.Lock()
	m, ok := t.matches[id]
	if ok {
		delete(t.matches, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.channels.Remove(m.Chat().Name)
	t.lobby.Broadcast(packet.DisposeMatch(id))
	t.log.Info("match disposed", zap.Int32("match_id", id))
}

// Resign removes the session from whatever room it occupies, disposing the
// room if it empties. Used by the registry removal cascade and the
// part-match handler.
func (t *Table) Resign(s *session.Session) {
	id := s.MatchID()
	if id == 0 {
		return
	}
	m := t.Get(id)
	if m == nil {
		s.SetMatchID(0)
		return
	}
	if m.Leave(s) {
		t.Dispose(id)
	}
}
