package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/match"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

// inMatch resolves the session's current room.
func (d *Dispatcher) inMatch(s *session.Session) *match.Match {
	id := s.MatchID()
	if id == 0 {
		return nil
	}
	return d.matches.Get(id)
}

func (d *Dispatcher) handleCreateMatch(s *session.Session, r *packet.Reader) error {
	data := r.ReadMatch()
	if err := r.Err(); err != nil {
		return err
	}
	if s.MatchID() != 0 {
		d.matches.Resign(s)
	}
	m, err := d.matches.Create(s, data)
	if err != nil {
		s.Enqueue(packet.MatchJoinFail())
		return err
	}
	if data.BeatmapID > 0 {
		d.verifyBeatmap(m, data.BeatmapID)
	}
	return nil
}

// verifyBeatmap asks the metadata collaborator about the room's map off
// the request path and notifies the host when it is unknown.
func (d *Dispatcher) verifyBeatmap(m *match.Match, beatmapID int32) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := d.store.FetchBeatmapMeta(ctx, beatmapID); err != nil {
			if host := d.registry.ByID(m.HostID()); host != nil {
				host.Enqueue(packet.Notification("This beatmap is not on the server."))
			}
			d.log.Debug("beatmap lookup failed",
				zap.Int32("beatmap_id", beatmapID), zap.Error(err))
		}
	}()
}

func (d *Dispatcher) handleJoinMatch(s *session.Session, r *packet.Reader) error {
	id := r.ReadInt32()
	password := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.matches.Get(id)
	if m == nil {
		s.Enqueue(packet.MatchJoinFail())
		return nil
	}
	if s.MatchID() != 0 {
		d.matches.Resign(s)
	}
	if err := m.Join(s, password); err != nil {
		s.Enqueue(packet.MatchJoinFail())
		return err
	}
	return nil
}

func (d *Dispatcher) handlePartMatch(s *session.Session, _ *packet.Reader) error {
	d.matches.Resign(s)
	return nil
}

func (d *Dispatcher) handleMatchChangeSlot(s *session.Session, r *packet.Reader) error {
	target := r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.ChangeSlot(s, int(target))
}

func (d *Dispatcher) handleMatchReady(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.Ready(s)
}

func (d *Dispatcher) handleMatchNotReady(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.Unready(s)
}

func (d *Dispatcher) handleMatchNoBeatmap(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.NoBeatmap(s)
}

func (d *Dispatcher) handleMatchHasBeatmap(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.HasBeatmap(s)
}

func (d *Dispatcher) handleMatchLock(s *session.Session, r *packet.Reader) error {
	target := r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.Lock(s, int(target))
}

func (d *Dispatcher) handleMatchChangeSettings(s *session.Session, r *packet.Reader) error {
	data := r.ReadMatch()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	if err := m.ChangeSettings(s, data); err != nil {
		return err
	}
	if data.BeatmapID > 0 {
		d.verifyBeatmap(m, data.BeatmapID)
	}
	return nil
}

func (d *Dispatcher) handleMatchStart(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.Start(s)
}

func (d *Dispatcher) handleMatchScoreUpdate(s *session.Session, r *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.ScoreFrame(s, r.Rest())
}

func (d *Dispatcher) handleMatchComplete(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	res, settled, err := m.Complete(s)
	if err != nil {
		return err
	}
	if settled {
		d.recordResult(res)
	}
	return nil
}

func (d *Dispatcher) handleMatchChangeMods(s *session.Session, r *packet.Reader) error {
	mods := r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.ChangeMods(s, mods)
}

func (d *Dispatcher) handleMatchLoadComplete(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.LoadComplete(s)
}

func (d *Dispatcher) handleMatchFailed(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.Failed(s)
}

func (d *Dispatcher) handleMatchSkipRequest(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.SkipRequest(s)
}

func (d *Dispatcher) handleMatchTransferHost(s *session.Session, r *packet.Reader) error {
	target := r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.TransferHost(s, int(target))
}

func (d *Dispatcher) handleMatchChangeTeam(s *session.Session, _ *packet.Reader) error {
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.ChangeTeam(s)
}

func (d *Dispatcher) handleMatchChangePassword(s *session.Session, r *packet.Reader) error {
	data := r.ReadMatch()
	if err := r.Err(); err != nil {
		return err
	}
	m := d.inMatch(s)
	if m == nil {
		return nil
	}
	return m.ChangePassword(s, data.Password)
}
