// Package spectator maintains the directed "watches" relation between
// sessions and fans live gameplay frames out along it. Edges are indexed
// from both ends: the target keeps its spectator set, the spectator keeps
// its single current target.
package spectator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

// Relay orchestrates spectator edges and their notifications. The edge
// state itself lives on the sessions; the relay owns the per-target
// spectator chat channel.
type Relay struct {
	log      *zap.Logger
	registry *session.Registry
	channels *channel.Table
}

func NewRelay(log *zap.Logger, registry *session.Registry, channels *channel.Table) *Relay {
	return &Relay{
		log:      log.Named("spectator"),
		registry: registry,
		channels: channels,
	}
}

func chanName(targetID int32) string {
	return fmt.Sprintf("#spect_%d", targetID)
}

// Start points the spectator at a new target, detaching any previous edge
// first (a spectator watches at most one session). The target learns of
// the new spectator, existing co-spectators learn of each other, and the
// newcomer receives the current roster. Re-requesting the current target
// is a no-op so nobody sees duplicate join notices.
func (r *Relay) Start(spec *session.Session, targetID int32) {
	target := r.registry.ByID(targetID)
	if target == nil || targetID == spec.ID {
		return
	}
	if prev := spec.SpectatingID(); prev != 0 {
		if prev == targetID {
			return
		}
		r.Stop(spec)
	}

	name := chanName(targetID)
	ch := r.channels.Get(name)
	if ch == nil {
		ch = r.channels.Add(channel.New(name, "spectator chat", 0, 0, false, true))
		ch.Join(target)
		target.Enqueue(packet.ChannelJoinSuccess(name))
	}

	target.AddSpectator(spec.ID)
	spec.SetSpectatingID(targetID)

	target.Enqueue(packet.SpectatorJoined(spec.ID))
	joined := packet.FellowSpectatorJoined(spec.ID)
	for _, id := range target.Spectators() {
		if id == spec.ID {
			continue
		}
		if other := r.registry.ByID(id); other != nil {
			other.Enqueue(joined)
			spec.Enqueue(packet.FellowSpectatorJoined(id))
		}
	}

	ch.Join(spec)
	spec.Enqueue(packet.ChannelJoinSuccess(name))
	r.log.Debug("spectating started", zap.Int32("spectator", spec.ID), zap.Int32("target", targetID))
}

// Stop clears the spectator's edge and notifies the target and remaining
// co-spectators. Idempotent.
func (r *Relay) Stop(spec *session.Session) {
	targetID := spec.SpectatingID()
	if targetID == 0 {
		return
	}
	spec.SetSpectatingID(0)
	r.channels.Leave(spec, chanName(targetID))

	target := r.registry.ByID(targetID)
	if target == nil {
		return
	}
	target.RemoveSpectator(spec.ID)
	target.Enqueue(packet.SpectatorLeft(spec.ID))
	left := packet.FellowSpectatorLeft(spec.ID)
	for _, id := range target.Spectators() {
		if other := r.registry.ByID(id); other != nil {
			other.Enqueue(left)
		}
	}
	// The target keeps its seat in an otherwise-empty spectator channel;
	// reap it once the last spectator detaches.
	if len(target.Spectators()) == 0 {
		r.channels.Leave(target, chanName(targetID))
		target.Enqueue(packet.ChannelKick(chanName(targetID)))
	}
	r.log.Debug("spectating stopped", zap.Int32("spectator", spec.ID), zap.Int32("target", targetID))
}

// Detach tears down every edge touching the session, in both directions.
// Used by the registry removal cascade: spectators of a vanishing target
// are notified and their edges cleared.
func (r *Relay) Detach(s *session.Session) {
	r.Stop(s)
	kick := packet.ChannelKick(chanName(s.ID))
	for _, id := range s.Spectators() {
		spec := r.registry.ByID(id)
		if spec == nil {
			continue
		}
		spec.SetSpectatingID(0)
		r.channels.Leave(spec, chanName(s.ID))
		spec.Enqueue(kick)
		s.RemoveSpectator(id)
	}
}

// Frames relays a gameplay frame from the playing target to its audience.
func (r *Relay) Frames(target *session.Session, raw []byte) {
	pkt := packet.SpectateFrames(raw)
	for _, id := range target.Spectators() {
		if spec := r.registry.ByID(id); spec != nil {
			spec.Enqueue(pkt)
		}
	}
}

// CantSpectate tells the target and co-spectators that this spectator
// lacks the current beatmap.
func (r *Relay) CantSpectate(spec *session.Session) {
	targetID := spec.SpectatingID()
	if targetID == 0 {
		return
	}
	target := r.registry.ByID(targetID)
	if target == nil {
		return
	}
	pkt := packet.SpectatorCantSpectate(spec.ID)
	target.Enqueue(pkt)
	for _, id := range target.Spectators() {
		if id == spec.ID {
			continue
		}
		if other := r.registry.ByID(id); other != nil {
			other.Enqueue(pkt)
		}
	}
}
