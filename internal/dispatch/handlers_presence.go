package dispatch

import (
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

func (d *Dispatcher) handleChangeAction(s *session.Session, r *packet.Reader) error {
	a := packet.Action{
		ID:         r.ReadUint8(),
		InfoText:   r.ReadString(),
		BeatmapMD5: r.ReadString(),
		Mods:       r.ReadUint32(),
		Mode:       r.ReadUint8(),
		BeatmapID:  r.ReadInt32(),
	}
	if err := r.Err(); err != nil {
		return err
	}
	s.SetAction(a)
	d.registry.Broadcast(nil, packet.UserStats(s.Stats()))
	return nil
}

func (d *Dispatcher) handleRequestStatsUpdate(s *session.Session, _ *packet.Reader) error {
	s.Enqueue(packet.UserStats(s.Stats()))
	return nil
}

func (d *Dispatcher) handlePing(s *session.Session, _ *packet.Reader) error {
	if s.QueueEmpty() {
		s.Enqueue(packet.Pong())
	}
	return nil
}

func (d *Dispatcher) handleLogout(s *session.Session, _ *packet.Reader) error {
	d.registry.Remove(s.ID)
	return nil
}

func (d *Dispatcher) handleUserStatsRequest(s *session.Session, r *packet.Reader) error {
	ids := r.ReadInt32Slice()
	if err := r.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if other := d.registry.ByID(id); other != nil {
			s.Enqueue(packet.UserStats(other.Stats()))
		}
	}
	return nil
}

func (d *Dispatcher) handlePresenceRequest(s *session.Session, r *packet.Reader) error {
	ids := r.ReadInt32Slice()
	if err := r.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if other := d.registry.ByID(id); other != nil {
			s.Enqueue(packet.UserPresence(other.Presence()))
		}
	}
	return nil
}

func (d *Dispatcher) handlePresenceRequestAll(s *session.Session, _ *packet.Reader) error {
	for _, other := range d.registry.Active() {
		s.Enqueue(packet.UserPresence(other.Presence()))
	}
	return nil
}
