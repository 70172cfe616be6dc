// Package session holds the live state of connected presences: the Session
// type, its outbound packet queue, and the process-wide Registry that owns
// every session.
package session

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/mikoto-dev/banchod/internal/packet"
)

type Status uint8

const (
	StatusActive Status = iota
	StatusTimedOut
	StatusLoggedOut
)

// Session is one connected presence. Identity fields are immutable after
// creation; everything else is guarded by mu. Cross-entity links (match,
// spectate target, channels) are stored as plain identifiers and resolved
// through the owning tables, never as owning pointers.
type Session struct {
	ID         int32
	Name       string
	Token      string
	Privileges int32
	Build      string

	mu           sync.Mutex
	status       Status
	lastSeen     time.Time
	queue        bytes.Buffer
	action       packet.Action
	channels     map[string]struct{}
	matchID      int32
	spectatingID int32
	spectators   map[int32]struct{}
}

func New(id int32, name, token string, privileges int32, build string) *Session {
	return &Session{
		ID:         id,
		Name:       name,
		Token:      token,
		Privileges: privileges,
		Build:      build,
		lastSeen:   time.Now(),
		channels:   make(map[string]struct{}),
		spectators: make(map[int32]struct{}),
	}
}

// SafeName canonicalizes a display name for case-insensitive lookup.
func SafeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// Enqueue appends fully framed packets to the outbound queue. Each packet
// is appended whole; a drain never observes a partial frame.
func (s *Session) Enqueue(pkts ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusLoggedOut {
		return
	}
	for _, p := range pkts {
		s.queue.Write(p)
	}
}

// Drain atomically takes the full queue contents, leaving it empty.
func (s *Session) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	out := make([]byte, s.queue.Len())
	copy(out, s.queue.Bytes())
	s.queue.Reset()
	return out
}

func (s *Session) QueueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len() == 0
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) Action() packet.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.action
}

func (s *Session) SetAction(a packet.Action) {
	s.mu.Lock()
	s.action = a
	s.mu.Unlock()
}

// Stats builds the profile block other clients render for this session.
func (s *Session) Stats() packet.Stats {
	return packet.Stats{UserID: s.ID, Action: s.Action()}
}

func (s *Session) Presence() packet.Presence {
	return packet.Presence{
		UserID:     s.ID,
		Name:       s.Name,
		Privileges: uint8(s.Privileges),
	}
}

func (s *Session) JoinedChannel(name string) {
	s.mu.Lock()
	s.channels[name] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) LeftChannel(name string) {
	s.mu.Lock()
	delete(s.channels, name)
	s.mu.Unlock()
}

func (s *Session) InChannel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[name]
	return ok
}

func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	return out
}

// MatchID is the room this session currently occupies, 0 when none.
func (s *Session) MatchID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

func (s *Session) SetMatchID(id int32) {
	s.mu.Lock()
	s.matchID = id
	s.mu.Unlock()
}

// SpectatingID is the session this one is watching, 0 when none.
func (s *Session) SpectatingID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectatingID
}

func (s *Session) SetSpectatingID(id int32) {
	s.mu.Lock()
	s.spectatingID = id
	s.mu.Unlock()
}

func (s *Session) AddSpectator(id int32) {
	s.mu.Lock()
	s.spectators[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) RemoveSpectator(id int32) {
	s.mu.Lock()
	delete(s.spectators, id)
	s.mu.Unlock()
}

func (s *Session) Spectators() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int32, 0, len(s.spectators))
	for id := range s.spectators {
		out = append(out, id)
	}
	return out
}
