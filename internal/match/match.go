// Package match implements the multiplayer room state machine: slots, the
// host, settings, and the Idle -> Playing -> Idle round lifecycle. Every
// state-changing operation rebuilds a room snapshot under the same lock as
// the mutation and fans it out to the occupants, so no client observes a
// half-applied update.
package match

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

var (
	ErrNotHost      = errors.New("match: host-only action")
	ErrFull         = errors.New("match: no open slot")
	ErrBadPassword  = errors.New("match: wrong password")
	ErrInProgress   = errors.New("match: round in progress")
	ErrNotInMatch   = errors.New("match: session not in this match")
	ErrNotReady     = errors.New("match: occupied slots are not ready")
	ErrNoSuchSlot   = errors.New("match: slot index out of range")
	ErrSlotOccupied = errors.New("match: slot unavailable")
	ErrIdle         = errors.New("match: no round in progress")
)

type SlotStatus uint8

const (
	SlotOpen     SlotStatus = 1 << 0
	SlotLocked   SlotStatus = 1 << 1
	SlotNotReady SlotStatus = 1 << 2
	SlotReady    SlotStatus = 1 << 3
	SlotNoMap    SlotStatus = 1 << 4
	SlotPlaying  SlotStatus = 1 << 5
	SlotComplete SlotStatus = 1 << 6
	SlotQuit     SlotStatus = 1 << 7
)

const slotOccupied = SlotNotReady | SlotReady | SlotNoMap | SlotPlaying | SlotComplete

type Team uint8

const (
	TeamNeutral Team = 0
	TeamBlue    Team = 1
	TeamRed     Team = 2
)

type TeamType uint8

const (
	TeamTypeHeadToHead TeamType = 0
	TeamTypeTagCoop    TeamType = 1
	TeamTypeVersus     TeamType = 2
	TeamTypeTagVersus  TeamType = 3
)

// Speed-changing mods stay on the room when free-mod is enabled; everything
// else moves to the per-slot masks.
const speedMods int32 = 64 | 256 | 512 // DoubleTime | HalfTime | Nightcore

// NumSlots is the fixed room size.
const NumSlots = 16

// Slot is one seat. The occupant pointer is a weak reference; the registry
// owns the session.
type Slot struct {
	Status  SlotStatus
	Team    Team
	Mods    int32
	Loaded  bool
	Skipped bool

	occupant *session.Session
}

func (sl *Slot) Occupied() bool { return sl.Status&slotOccupied != 0 }

func (sl *Slot) clear() {
	*sl = Slot{Status: SlotOpen}
}

// Result is the snapshot handed to the persistence collaborator when a
// round completes. It is built under the match lock but recorded after the
// lock is released.
type Result struct {
	MatchID      int32
	Name         string
	Mode         uint8
	Mods         int32
	WinCondition uint8
	TeamType     uint8
	BeatmapID    int32
	BeatmapMD5   string
	PlayerIDs    []int32
	EndedAt      time.Time
}

// Match is one multiplayer room.
type Match struct {
	ID int32

	log   *zap.Logger
	chat  *channel.Channel
	lobby *channel.Channel

	// requireMaps makes a NoMap slot block match start instead of sitting
	// the round out.
	requireMaps bool

	mu           sync.Mutex
	name         string
	password     string
	beatmapName  string
	beatmapID    int32
	beatmapMD5   string
	mode         uint8
	mods         int32
	winCondition uint8
	teamType     TeamType
	freeMods     bool
	inProgress   bool
	seed         int32
	hostID       int32
	slots        [NumSlots]Slot
}

func newMatch(id int32, host *session.Session, data packet.MatchData, chat, lobby *channel.Channel, requireMaps bool, log *zap.Logger) *Match {
	m := &Match{
		ID:           id,
		log:          log,
		chat:         chat,
		lobby:        lobby,
		requireMaps:  requireMaps,
		name:         data.Name,
		password:     data.Password,
		beatmapName:  data.BeatmapName,
		beatmapID:    data.BeatmapID,
		beatmapMD5:   data.BeatmapMD5,
		mode:         data.Mode,
		mods:         data.Mods,
		winCondition: data.WinCondition,
		teamType:     TeamType(data.TeamType),
		freeMods:     data.FreeMods,
		seed:         data.Seed,
		hostID:       host.ID,
	}
	for i := range m.slots {
		m.slots[i].Status = SlotOpen
	}
	return m
}

// Chat is the room's private channel.
func (m *Match) Chat() *channel.Channel { return m.chat }

func (m *Match) HostID() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID
}

func (m *Match) InProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inProgress
}

// Data builds the wire snapshot of the room.
func (m *Match) Data() packet.MatchData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataLocked()
}

func (m *Match) dataLocked() packet.MatchData {
	d := packet.MatchData{
		ID:           uint16(m.ID),
		InProgress:   m.inProgress,
		Mods:         m.mods,
		Name:         m.name,
		Password:     m.password,
		BeatmapName:  m.beatmapName,
		BeatmapID:    m.beatmapID,
		BeatmapMD5:   m.beatmapMD5,
		HostID:       m.hostID,
		Mode:         m.mode,
		WinCondition: m.winCondition,
		TeamType:     uint8(m.teamType),
		FreeMods:     m.freeMods,
		Seed:         m.seed,
	}
	for i := range m.slots {
		sl := &m.slots[i]
		d.SlotStatuses[i] = uint8(sl.Status)
		d.SlotTeams[i] = uint8(sl.Team)
		d.SlotMods[i] = sl.Mods
		if sl.occupant != nil {
			d.SlotUserIDs[i] = sl.occupant.ID
		}
	}
	return d
}

// broadcastLocked fans the current snapshot to every occupant (with the
// password) and to the lobby listing (without it). Callers hold m.mu, which
// is what makes the snapshot atomic with the mutation it follows.
func (m *Match) broadcastLocked() {
	d := m.dataLocked()
	pkt := packet.UpdateMatch(d, true)
	for i := range m.slots {
		if s := m.slots[i].occupant; s != nil {
			s.Enqueue(pkt)
		}
	}
	if m.lobby != nil {
		m.lobby.Broadcast(packet.UpdateMatch(d, false))
	}
}

func (m *Match) slotOf(id int32) int {
	for i := range m.slots {
		if s := m.slots[i].occupant; s != nil && s.ID == id {
			return i
		}
	}
	return -1
}

func (m *Match) occupantsLocked() []*session.Session {
	var out []*session.Session
	for i := range m.slots {
		if s := m.slots[i].occupant; s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Join seats the session in the first open slot. The caller is enqueued a
// join-success snapshot; everyone else gets the usual update.
func (m *Match) Join(s *session.Session, password string) error {
	m.mu.Lock()
	if m.password != "" && password != m.password {
		m.mu.Unlock()
		return ErrBadPassword
	}
	idx := -1
	for i := range m.slots {
		if m.slots[i].Status == SlotOpen {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrFull
	}
	sl := &m.slots[idx]
	sl.Status = SlotNotReady
	sl.occupant = s
	if m.teamType == TeamTypeVersus || m.teamType == TeamTypeTagVersus {
		sl.Team = TeamBlue
		if idx%2 == 1 {
			sl.Team = TeamRed
		}
	}
	s.SetMatchID(m.ID)
	s.Enqueue(packet.MatchJoinSuccess(m.dataLocked()))
	m.broadcastLocked()
	m.mu.Unlock()

	m.chat.Join(s)
	s.Enqueue(packet.ChannelJoinSuccess(m.chat.Name))
	return nil
}

// Leave vacates the session's slot and reports whether the room is now
// empty. A departure mid-round marks the slot Quit so the round can still
// settle; otherwise the slot reopens. Host departure migrates the host to
// the lowest occupied, unlocked slot.
func (m *Match) Leave(s *session.Session) (empty bool) {
	m.mu.Lock()
	idx := m.slotOf(s.ID)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	sl := &m.slots[idx]
	wasPlaying := sl.Status == SlotPlaying
	sl.clear()
	if m.inProgress && wasPlaying {
		sl.Status = SlotQuit
	}
	s.SetMatchID(0)

	occupants := m.occupantsLocked()
	if len(occupants) == 0 {
		m.mu.Unlock()
		m.chat.Part(s)
		return true
	}
	if m.hostID == s.ID {
		for i := range m.slots {
			if m.slots[i].Status&SlotLocked != 0 {
				continue
			}
			if o := m.slots[i].occupant; o != nil {
				m.hostID = o.ID
				o.Enqueue(packet.MatchTransferHost())
				break
			}
		}
	}
	if m.inProgress && wasPlaying {
		m.settleLocked()
	}
	m.broadcastLocked()
	m.mu.Unlock()

	m.chat.Part(s)
	return false
}

// ChangeSlot moves the session to an open slot, carrying its state.
func (m *Match) ChangeSlot(s *session.Session, target int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target < 0 || target >= NumSlots {
		return ErrNoSuchSlot
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	if m.slots[target].Status != SlotOpen {
		return ErrSlotOccupied
	}
	m.slots[target] = m.slots[idx]
	m.slots[idx].clear()
	m.broadcastLocked()
	return nil
}

func (m *Match) setStatus(s *session.Session, st SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	m.slots[idx].Status = st
	m.broadcastLocked()
	return nil
}

func (m *Match) Ready(s *session.Session) error     { return m.setStatus(s, SlotReady) }
func (m *Match) Unready(s *session.Session) error   { return m.setStatus(s, SlotNotReady) }
func (m *Match) NoBeatmap(s *session.Session) error { return m.setStatus(s, SlotNoMap) }
func (m *Match) HasBeatmap(s *session.Session) error {
	return m.setStatus(s, SlotNotReady)
}

// Lock toggles a slot between Open and Locked. Locking a seated slot moves
// the occupant to the first open slot; without one the toggle is refused.
// The host cannot lock their own slot, and no slot changes while a round
// is live.
func (m *Match) Lock(s *session.Session, target int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if m.inProgress {
		return ErrInProgress
	}
	if target < 0 || target >= NumSlots {
		return ErrNoSuchSlot
	}
	sl := &m.slots[target]
	switch {
	case sl.Status == SlotLocked:
		sl.Status = SlotOpen
	case sl.Status == SlotOpen:
		sl.Status = SlotLocked
	case sl.Occupied():
		if sl.occupant.ID == m.hostID {
			return ErrSlotOccupied
		}
		free := -1
		for i := range m.slots {
			if m.slots[i].Status == SlotOpen {
				free = i
				break
			}
		}
		if free < 0 {
			return ErrSlotOccupied
		}
		m.slots[free] = *sl
		sl.clear()
		sl.Status = SlotLocked
	default:
		return ErrSlotOccupied
	}
	m.broadcastLocked()
	return nil
}

// ChangeSettings applies a host-supplied settings block. Refused while a
// round is live. A beatmap change resets every Ready slot.
func (m *Match) ChangeSettings(s *session.Session, d packet.MatchData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if m.inProgress {
		return ErrInProgress
	}

	mapChanged := d.BeatmapMD5 != m.beatmapMD5
	m.name = d.Name
	m.beatmapName = d.BeatmapName
	m.beatmapID = d.BeatmapID
	m.beatmapMD5 = d.BeatmapMD5
	m.mode = d.Mode
	m.winCondition = d.WinCondition
	m.seed = d.Seed

	if TeamType(d.TeamType) != m.teamType {
		m.teamType = TeamType(d.TeamType)
		versus := m.teamType == TeamTypeVersus || m.teamType == TeamTypeTagVersus
		for i := range m.slots {
			if !m.slots[i].Occupied() {
				continue
			}
			if versus {
				m.slots[i].Team = TeamBlue
				if i%2 == 1 {
					m.slots[i].Team = TeamRed
				}
			} else {
				m.slots[i].Team = TeamNeutral
			}
		}
	}

	if d.FreeMods != m.freeMods {
		m.freeMods = d.FreeMods
		if m.freeMods {
			for i := range m.slots {
				if m.slots[i].Occupied() {
					m.slots[i].Mods = m.mods &^ speedMods
				}
			}
			m.mods &= speedMods
		} else {
			for i := range m.slots {
				m.slots[i].Mods = 0
			}
			m.mods = d.Mods
		}
	} else if !m.freeMods {
		m.mods = d.Mods
	}

	if mapChanged {
		for i := range m.slots {
			if m.slots[i].Status == SlotReady {
				m.slots[i].Status = SlotNotReady
			}
		}
	}
	m.broadcastLocked()
	return nil
}

// ChangeMods updates mod masks. Under free-mod the host controls the shared
// speed mods and every occupant their own slot; otherwise only the host may
// change the room mask, and never mid-round.
func (m *Match) ChangeMods(s *session.Session, mods int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	if m.freeMods {
		if s.ID == m.hostID {
			m.mods = mods & speedMods
		}
		m.slots[idx].Mods = mods &^ speedMods
	} else {
		if s.ID != m.hostID {
			return ErrNotHost
		}
		if m.inProgress {
			return ErrInProgress
		}
		m.mods = mods
	}
	m.broadcastLocked()
	return nil
}

func (m *Match) ChangeTeam(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.teamType != TeamTypeVersus && m.teamType != TeamTypeTagVersus {
		return ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	if m.slots[idx].Team == TeamBlue {
		m.slots[idx].Team = TeamRed
	} else {
		m.slots[idx].Team = TeamBlue
	}
	m.broadcastLocked()
	return nil
}

func (m *Match) ChangePassword(s *session.Session, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if m.inProgress {
		return ErrInProgress
	}
	m.password = password
	pkt := packet.MatchChangePassword(password)
	for _, o := range m.occupantsLocked() {
		o.Enqueue(pkt)
	}
	m.broadcastLocked()
	return nil
}

func (m *Match) TransferHost(s *session.Session, target int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if target < 0 || target >= NumSlots {
		return ErrNoSuchSlot
	}
	o := m.slots[target].occupant
	if o == nil {
		return ErrSlotOccupied
	}
	m.hostID = o.ID
	o.Enqueue(packet.MatchTransferHost())
	m.broadcastLocked()
	return nil
}

// Start begins a round. Preconditions: the caller hosts the room, the room
// is idle, at least one slot is Ready, and no occupied unlocked slot is
// NotReady. A NoMap slot blocks start under the require-maps policy and
// sits the round out otherwise.
func (m *Match) Start(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if m.inProgress {
		return ErrInProgress
	}
	ready := 0
	for i := range m.slots {
		sl := &m.slots[i]
		switch sl.Status {
		case SlotReady:
			ready++
		case SlotNotReady:
			return ErrNotReady
		case SlotNoMap:
			if m.requireMaps {
				return ErrNotReady
			}
		}
	}
	if ready == 0 {
		return ErrNotReady
	}

	m.inProgress = true
	for i := range m.slots {
		sl := &m.slots[i]
		if sl.Status == SlotReady {
			sl.Status = SlotPlaying
			sl.Loaded = false
			sl.Skipped = false
		}
	}
	d := m.dataLocked()
	start := packet.MatchStart(d)
	for i := range m.slots {
		if o := m.slots[i].occupant; o != nil {
			o.Enqueue(start)
		}
	}
	if m.lobby != nil {
		m.lobby.Broadcast(packet.UpdateMatch(d, false))
	}
	m.log.Info("round started", zap.Int32("match_id", m.ID), zap.Int("players", ready))
	return nil
}

func (m *Match) forRound(fn func(o *session.Session)) {
	for i := range m.slots {
		sl := &m.slots[i]
		if sl.occupant != nil && (sl.Status == SlotPlaying || sl.Status == SlotComplete) {
			fn(sl.occupant)
		}
	}
}

// LoadComplete marks the slot loaded; once every playing slot has loaded,
// the room tells everyone to begin rendering.
func (m *Match) LoadComplete(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inProgress {
		return ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	m.slots[idx].Loaded = true
	for i := range m.slots {
		if m.slots[i].Status == SlotPlaying && !m.slots[i].Loaded {
			return nil
		}
	}
	pkt := packet.MatchAllPlayersLoaded()
	m.forRound(func(o *session.Session) { o.Enqueue(pkt) })
	return nil
}

// SkipRequest records a skip vote; once every playing slot has voted the
// skip is broadcast.
func (m *Match) SkipRequest(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inProgress {
		return ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	m.slots[idx].Skipped = true
	skipped := packet.MatchPlayerSkipped(s.ID)
	m.forRound(func(o *session.Session) { o.Enqueue(skipped) })
	for i := range m.slots {
		if m.slots[i].Status == SlotPlaying && !m.slots[i].Skipped {
			return nil
		}
	}
	pkt := packet.MatchSkip()
	m.forRound(func(o *session.Session) { o.Enqueue(pkt) })
	return nil
}

// ScoreFrame relays a live score frame to the other round participants,
// stamped with the sender's slot index.
func (m *Match) ScoreFrame(s *session.Session, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inProgress {
		return ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	if len(frame) > 4 {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		buf[4] = byte(idx)
		frame = buf
	}
	pkt := packet.MatchScoreUpdate(frame)
	m.forRound(func(o *session.Session) {
		if o.ID != s.ID {
			o.Enqueue(pkt)
		}
	})
	return nil
}

// Failed relays a player failure to the round.
func (m *Match) Failed(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inProgress {
		return ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 {
		return ErrNotInMatch
	}
	pkt := packet.MatchPlayerFailed(int32(idx))
	m.forRound(func(o *session.Session) { o.Enqueue(pkt) })
	return nil
}

// Complete marks the session's round finished. When the last playing slot
// settles, the round closes and a Result snapshot is returned for the
// persistence collaborator; recording happens outside the match lock.
func (m *Match) Complete(s *session.Session) (Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inProgress {
		return Result{}, false, ErrIdle
	}
	idx := m.slotOf(s.ID)
	if idx < 0 || m.slots[idx].Status != SlotPlaying {
		return Result{}, false, ErrNotInMatch
	}
	m.slots[idx].Status = SlotComplete
	res, settled := m.settleLocked()
	if !settled {
		m.broadcastLocked()
	}
	return res, settled, nil
}

// settleLocked closes the round once no slot is still Playing. Complete
// slots return to NotReady, Quit slots reopen.
func (m *Match) settleLocked() (Result, bool) {
	for i := range m.slots {
		if m.slots[i].Status == SlotPlaying {
			return Result{}, false
		}
	}

	res := Result{
		MatchID:      m.ID,
		Name:         m.name,
		Mode:         m.mode,
		Mods:         m.mods,
		WinCondition: m.winCondition,
		TeamType:     uint8(m.teamType),
		BeatmapID:    m.beatmapID,
		BeatmapMD5:   m.beatmapMD5,
		EndedAt:      time.Now(),
	}
	done := packet.MatchComplete()
	for i := range m.slots {
		sl := &m.slots[i]
		switch sl.Status {
		case SlotComplete:
			res.PlayerIDs = append(res.PlayerIDs, sl.occupant.ID)
			sl.occupant.Enqueue(done)
			sl.Status = SlotNotReady
		case SlotQuit:
			sl.clear()
		}
		sl.Loaded = false
		sl.Skipped = false
	}
	m.inProgress = false
	m.broadcastLocked()
	m.log.Info("round complete", zap.Int32("match_id", m.ID), zap.Int("finishers", len(res.PlayerIDs)))
	return res, true
}

// Abort ends a live round without results. Host only.
func (m *Match) Abort(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID != m.hostID {
		return ErrNotHost
	}
	if !m.inProgress {
		return ErrIdle
	}
	pkt := packet.MatchAbort()
	for i := range m.slots {
		sl := &m.slots[i]
		switch sl.Status {
		case SlotPlaying, SlotComplete:
			sl.occupant.Enqueue(pkt)
			sl.Status = SlotNotReady
		case SlotQuit:
			sl.clear()
		}
		sl.Loaded = false
		sl.Skipped = false
	}
	m.inProgress = false
	m.broadcastLocked()
	return nil
}
