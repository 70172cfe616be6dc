package channel

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/session"
)

// Table owns every channel in the process. Static channels are added at
// startup and never destroyed; dynamic channels are reaped when their last
// member leaves.
type Table struct {
	log *zap.Logger

	// echoSender is the product policy applied to channels created after
	// construction; see Channel.EchoSender.
	echoSender bool

	mu    sync.RWMutex
	chans map[string]*Channel
}

func NewTable(log *zap.Logger, echoSender bool) *Table {
	return &Table{
		log:        log.Named("channels"),
		echoSender: echoSender,
		chans:      make(map[string]*Channel),
	}
}

// Add registers a channel, applying the table's echo policy.
func (t *Table) Add(c *Channel) *Channel {
	c.EchoSender = t.echoSender
	t.mu.Lock()
	t.chans[c.Name] = c
	t.mu.Unlock()
	t.log.Debug("channel added", zap.String("name", c.Name), zap.Bool("dynamic", c.Dynamic))
	return c
}

func (t *Table) Get(name string) *Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chans[name]
}

func (t *Table) All() []*Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Channel, 0, len(t.chans))
	for _, c := range t.chans {
		out = append(out, c)
	}
	return out
}

// Remove drops a channel from the table.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	delete(t.chans, name)
	t.mu.Unlock()
	t.log.Debug("channel removed", zap.String("name", name))
}

// Leave parts the session from a channel by name and reaps the channel if
// it is dynamic and now empty. Unknown names are a resolved no-op.
func (t *Table) Leave(s *session.Session, name string) {
	c := t.Get(name)
	if c == nil {
		s.LeftChannel(name)
		return
	}
	if c.Part(s) == 0 && c.Dynamic {
		t.Remove(name)
	}
}

// LeaveAll parts the session from every channel it is a member of. Used by
// the registry removal cascade.
func (t *Table) LeaveAll(s *session.Session) {
	for _, name := range s.Channels() {
		t.Leave(s, name)
	}
}
