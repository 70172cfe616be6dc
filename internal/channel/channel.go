// Package channel implements named chat/broadcast groups with privilege
// predicates and fan-out to member queues.
package channel

import (
	"errors"
	"sync"

	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

var (
	// ErrWriteDenied reports a send rejected by the write predicate.
	ErrWriteDenied = errors.New("channel: insufficient privileges to write")

	// ErrNotFound reports an operation on an unknown channel.
	ErrNotFound = errors.New("channel: no such channel")
)

// Channel is one chat group. Static channels live for the process; dynamic
// ones (per-match, per-spectator) are destroyed by the table when the last
// member parts.
type Channel struct {
	Name      string
	Topic     string
	ReadPriv  int32
	WritePriv int32
	AutoJoin  bool
	Dynamic   bool

	// EchoSender includes the author in its own message fan-out.
	EchoSender bool

	mu      sync.RWMutex
	members map[int32]*session.Session
}

func New(name, topic string, readPriv, writePriv int32, autoJoin, dynamic bool) *Channel {
	return &Channel{
		Name:      name,
		Topic:     topic,
		ReadPriv:  readPriv,
		WritePriv: writePriv,
		AutoJoin:  autoJoin,
		Dynamic:   dynamic,
		members:   make(map[int32]*session.Session),
	}
}

// CanRead applies the minimum-privilege-to-read predicate.
func (c *Channel) CanRead(s *session.Session) bool {
	return s.Privileges&c.ReadPriv == c.ReadPriv
}

func (c *Channel) CanWrite(s *session.Session) bool {
	return s.Privileges&c.WritePriv == c.WritePriv
}

// Join adds the session to the membership set. It fails silently (false)
// when the read predicate rejects the session; joining twice is a no-op
// success.
func (c *Channel) Join(s *session.Session) bool {
	if !c.CanRead(s) {
		return false
	}
	c.mu.Lock()
	c.members[s.ID] = s
	c.mu.Unlock()
	s.JoinedChannel(c.Name)
	return true
}

// Part removes the session and reports the remaining member count.
func (c *Channel) Part(s *session.Session) int {
	c.mu.Lock()
	delete(c.members, s.ID)
	n := len(c.members)
	c.mu.Unlock()
	s.LeftChannel(c.Name)
	return n
}

func (c *Channel) HasMember(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Members returns a point-in-time snapshot of the membership set. Fan-outs
// iterate the snapshot so a concurrent part cannot receive a delivery that
// began after it left, and a concurrent join is not delivered mid-flight.
func (c *Channel) Members() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*session.Session, 0, len(c.members))
	for _, s := range c.members {
		out = append(out, s)
	}
	return out
}

// Send fans a chat message from the sender to the membership. The sender
// is excluded unless EchoSender is set.
func (c *Channel) Send(from *session.Session, text string) error {
	if !c.CanWrite(from) {
		return ErrWriteDenied
	}
	pkt := packet.SendMessage(from.Name, text, c.Name, from.ID)
	for _, m := range c.Members() {
		if m.ID == from.ID && !c.EchoSender {
			continue
		}
		m.Enqueue(pkt)
	}
	return nil
}

// Broadcast enqueues a prebuilt packet on every member.
func (c *Channel) Broadcast(pkt []byte) {
	for _, m := range c.Members() {
		m.Enqueue(pkt)
	}
}

// BroadcastExcept enqueues on every member but the given session.
func (c *Channel) BroadcastExcept(except int32, pkt []byte) {
	for _, m := range c.Members() {
		if m.ID != except {
			m.Enqueue(pkt)
		}
	}
}
