package dispatch

import (
	"fmt"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

// resolveChannel maps the client-facing aliases onto real channel names.
// Clients address their room chat as "#multiplayer" and spectator chat as
// "#spectator" regardless of which room or host they are attached to.
func (d *Dispatcher) resolveChannel(s *session.Session, name string) *channel.Channel {
	switch name {
	case "#multiplayer":
		id := s.MatchID()
		if id == 0 {
			return nil
		}
		name = fmt.Sprintf("#multi_%d", id)
	case "#spectator":
		if target := s.SpectatingID(); target != 0 {
			name = fmt.Sprintf("#spect_%d", target)
		} else {
			name = fmt.Sprintf("#spect_%d", s.ID)
		}
	}
	return d.channels.Get(name)
}

func (d *Dispatcher) handlePublicMessage(s *session.Session, r *packet.Reader) error {
	_ = r.ReadString() // sender, ignored; identity comes from the session
	text := r.ReadString()
	target := r.ReadString()
	_ = r.ReadInt32() // sender id, ignored
	if err := r.Err(); err != nil {
		return err
	}
	ch := d.resolveChannel(s, target)
	if ch == nil {
		return nil // unknown channel, resolved no-op
	}
	if !ch.HasMember(s.ID) {
		return channel.ErrWriteDenied
	}
	return ch.Send(s, text)
}

func (d *Dispatcher) handlePrivateMessage(s *session.Session, r *packet.Reader) error {
	_ = r.ReadString()
	text := r.ReadString()
	target := r.ReadString()
	_ = r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	other := d.registry.ByName(target)
	if other == nil {
		s.Enqueue(packet.Notification(target + " is offline."))
		return nil
	}
	other.Enqueue(packet.SendMessage(s.Name, text, other.Name, s.ID))
	return nil
}

func (d *Dispatcher) handleChannelJoin(s *session.Session, r *packet.Reader) error {
	name := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	ch := d.resolveChannel(s, name)
	if ch == nil {
		return nil
	}
	if ch.Join(s) {
		s.Enqueue(packet.ChannelJoinSuccess(ch.Name))
	}
	return nil
}

func (d *Dispatcher) handleChannelPart(s *session.Session, r *packet.Reader) error {
	name := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	ch := d.resolveChannel(s, name)
	if ch == nil {
		return nil
	}
	d.channels.Leave(s, ch.Name)
	return nil
}

func (d *Dispatcher) handleJoinLobby(s *session.Session, r *packet.Reader) error {
	lobby := d.channels.Get(LobbyChannel)
	if lobby == nil || !lobby.Join(s) {
		return nil
	}
	s.Enqueue(packet.ChannelJoinSuccess(LobbyChannel))
	for _, m := range d.matches.All() {
		s.Enqueue(packet.NewMatch(m.Data()))
	}
	return nil
}

func (d *Dispatcher) handlePartLobby(s *session.Session, _ *packet.Reader) error {
	d.channels.Leave(s, LobbyChannel)
	return nil
}
