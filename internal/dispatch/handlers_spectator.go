package dispatch

import (
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

func (d *Dispatcher) handleStartSpectating(s *session.Session, r *packet.Reader) error {
	target := r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	d.relay.Start(s, target)
	return nil
}

func (d *Dispatcher) handleStopSpectating(s *session.Session, _ *packet.Reader) error {
	d.relay.Stop(s)
	return nil
}

func (d *Dispatcher) handleSpectateFrames(s *session.Session, r *packet.Reader) error {
	d.relay.Frames(s, r.Rest())
	return nil
}

func (d *Dispatcher) handleCantSpectate(s *session.Session, _ *packet.Reader) error {
	d.relay.CantSpectate(s)
	return nil
}
