package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
)

func newTestTable(t *testing.T, requireMaps bool) (*Table, *channel.Channel) {
	t.Helper()
	channels := channel.NewTable(zap.NewNop(), false)
	lobby := channels.Add(channel.New("#lobby", "room listing", 0, 0, false, false))
	return NewTable(zap.NewNop(), channels, lobby, requireMaps), lobby
}

func newSession(id int32, name string) *session.Session {
	return session.New(id, name, "tok-"+name, 1, "b1")
}

func roomData(name string) packet.MatchData {
	return packet.MatchData{
		Name:        name,
		BeatmapName: "artist - song [hard]",
		BeatmapID:   42,
		BeatmapMD5:  "abcdef0123456789abcdef0123456789",
	}
}

func opcodesOf(t *testing.T, s *session.Session) []packet.OpCode {
	t.Helper()
	pkts, err := packet.Split(s.Drain())
	require.NoError(t, err)
	out := make([]packet.OpCode, 0, len(pkts))
	for _, p := range pkts {
		out = append(out, p.ID)
	}
	return out
}

// threePlayerRoom seats host, b and c in slots 0-2 with queues drained.
func threePlayerRoom(t *testing.T, requireMaps bool) (*Table, *Match, *session.Session, *session.Session, *session.Session) {
	t.Helper()
	tbl, _ := newTestTable(t, requireMaps)
	host, b, c := newSession(1, "host"), newSession(2, "b"), newSession(3, "c")
	m, err := tbl.Create(host, roomData("scrims"))
	require.NoError(t, err)
	require.NoError(t, m.Join(b, ""))
	require.NoError(t, m.Join(c, ""))
	for _, s := range []*session.Session{host, b, c} {
		s.Drain()
	}
	return tbl, m, host, b, c
}

func TestCreate_SeatsHostAndAnnouncesToLobby(t *testing.T) {
	tbl, lobby := newTestTable(t, true)
	watcher := newSession(9, "watcher")
	require.True(t, lobby.Join(watcher))

	host := newSession(1, "host")
	m, err := tbl.Create(host, roomData("fresh"))
	require.NoError(t, err)

	d := m.Data()
	assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[0])
	assert.Equal(t, host.ID, d.SlotUserIDs[0])
	assert.Equal(t, host.ID, d.HostID)
	assert.Equal(t, m.ID, host.MatchID())

	assert.Contains(t, opcodesOf(t, host), packet.ServerMatchJoinSuccess)
	assert.Contains(t, opcodesOf(t, watcher), packet.ServerNewMatch)
}

func TestJoin_PasswordAndCapacity(t *testing.T) {
	tbl, _ := newTestTable(t, true)
	host := newSession(1, "host")
	data := roomData("locked")
	data.Password = "sekrit"
	m, err := tbl.Create(host, data)
	require.NoError(t, err)

	joiner := newSession(2, "joiner")
	assert.ErrorIs(t, m.Join(joiner, "wrong"), ErrBadPassword)
	assert.Zero(t, joiner.MatchID())
	require.NoError(t, m.Join(joiner, "sekrit"))

	// Fill the rest of the room, then one more has nowhere to sit.
	for i := int32(3); i <= 16; i++ {
		require.NoError(t, m.Join(newSession(i, string(rune('a'+i))), "sekrit"))
	}
	assert.ErrorIs(t, m.Join(newSession(99, "late"), "sekrit"), ErrFull)
}

func TestStart_ScenarioThreeReadyPlayers(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	require.NoError(t, m.Ready(host))
	require.NoError(t, m.Ready(b))
	require.NoError(t, m.Ready(c))

	require.NoError(t, m.Start(host))

	d := m.Data()
	assert.True(t, d.InProgress)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint8(SlotPlaying), d.SlotStatuses[i], "slot %d", i)
	}
	for _, s := range []*session.Session{host, b, c} {
		assert.Contains(t, opcodesOf(t, s), packet.ServerMatchStart)
	}
}

func TestStart_RequiresHost(t *testing.T) {
	_, m, host, b, _ := threePlayerRoom(t, true)
	require.NoError(t, m.Ready(host))
	require.NoError(t, m.Ready(b))
	assert.ErrorIs(t, m.Start(b), ErrNotHost)
	assert.False(t, m.InProgress())
}

func TestStart_NoReadySlotFails(t *testing.T) {
	tbl, _ := newTestTable(t, true)
	host := newSession(1, "host")
	m, err := tbl.Create(host, roomData("idle"))
	require.NoError(t, err)

	assert.ErrorIs(t, m.Start(host), ErrNotReady)
}

func TestStart_BlockedByNotReadyOccupant(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	require.NoError(t, m.Ready(host))
	require.NoError(t, m.Ready(b))
	_ = c // c stays NotReady

	assert.ErrorIs(t, m.Start(host), ErrNotReady)
}

func TestStart_NoMapPolicy(t *testing.T) {
	t.Run("blocks when maps required", func(t *testing.T) {
		_, m, host, b, c := threePlayerRoom(t, true)
		require.NoError(t, m.Ready(host))
		require.NoError(t, m.Ready(b))
		require.NoError(t, m.NoBeatmap(c))
		assert.ErrorIs(t, m.Start(host), ErrNotReady)
	})

	t.Run("sits the round out otherwise", func(t *testing.T) {
		_, m, host, b, c := threePlayerRoom(t, false)
		require.NoError(t, m.Ready(host))
		require.NoError(t, m.Ready(b))
		require.NoError(t, m.NoBeatmap(c))
		require.NoError(t, m.Start(host))

		d := m.Data()
		assert.Equal(t, uint8(SlotPlaying), d.SlotStatuses[0])
		assert.Equal(t, uint8(SlotPlaying), d.SlotStatuses[1])
		assert.Equal(t, uint8(SlotNoMap), d.SlotStatuses[2])
	})
}

func TestStart_WhileInProgressConflicts(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))
	assert.ErrorIs(t, m.Start(host), ErrInProgress)
}

func TestComplete_SettlesRoundAndResetsSlots(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))

	_, settled, err := m.Complete(host)
	require.NoError(t, err)
	assert.False(t, settled)

	_, settled, err = m.Complete(b)
	require.NoError(t, err)
	assert.False(t, settled)

	res, settled, err := m.Complete(c)
	require.NoError(t, err)
	require.True(t, settled)
	assert.ElementsMatch(t, []int32{1, 2, 3}, res.PlayerIDs)
	assert.Equal(t, m.ID, res.MatchID)

	d := m.Data()
	assert.False(t, d.InProgress)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[i])
	}
	for _, s := range []*session.Session{host, b, c} {
		assert.Contains(t, opcodesOf(t, s), packet.ServerMatchComplete)
	}
}

func TestLeave_MidRoundQuitStillSettles(t *testing.T) {
	tbl, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))

	_, _, err := m.Complete(host)
	require.NoError(t, err)
	_, _, err = m.Complete(b)
	require.NoError(t, err)

	// The last playing occupant disconnects; the round settles without it.
	tbl.Resign(c)
	d := m.Data()
	assert.False(t, d.InProgress)
	assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[0])
	assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[1])
	assert.Equal(t, uint8(SlotOpen), d.SlotStatuses[2])
}

func TestHostMigration_AlwaysOccupiedOrDestroyed(t *testing.T) {
	tbl, m, host, b, c := threePlayerRoom(t, true)
	id := m.ID

	tbl.Resign(host)
	assert.Equal(t, b.ID, m.HostID())
	assert.Contains(t, opcodesOf(t, b), packet.ServerMatchTransferHost)

	tbl.Resign(b)
	assert.Equal(t, c.ID, m.HostID())

	tbl.Resign(c)
	assert.Nil(t, tbl.Get(id), "empty room is destroyed")
}

func TestHostMigration_SkipsLockedSlot(t *testing.T) {
	tbl, m, host, b, c := threePlayerRoom(t, true)

	// Move c out of the way so slot 1 (b) and a locked slot 2 remain.
	require.NoError(t, m.ChangeSlot(c, 5))
	require.NoError(t, m.Lock(host, 2))

	tbl.Resign(host)
	assert.Equal(t, b.ID, m.HostID())
}

func TestChangeSettings_HostOnlyAndNotWhilePlaying(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)

	assert.ErrorIs(t, m.ChangeSettings(b, roomData("hijack")), ErrNotHost)

	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))
	assert.ErrorIs(t, m.ChangeSettings(host, roomData("too late")), ErrInProgress)
}

func TestSettings_FrozenWhileRoundLive(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))

	assert.ErrorIs(t, m.ChangePassword(host, "sneaky"), ErrInProgress)
	assert.ErrorIs(t, m.Lock(host, 5), ErrInProgress)
	assert.ErrorIs(t, m.ChangeMods(host, 8), ErrInProgress)

	d := m.Data()
	assert.Empty(t, d.Password)
	assert.Equal(t, int32(0), d.Mods)
	assert.Equal(t, uint8(SlotOpen), d.SlotStatuses[5])
}

func TestChangeMods_PerSlotAllowedWhileRoundLive(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)

	free := roomData("scrims")
	free.FreeMods = true
	require.NoError(t, m.ChangeSettings(host, free))

	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))

	require.NoError(t, m.ChangeMods(b, 8))
	assert.Equal(t, int32(8), m.Data().SlotMods[1])
}

func TestChangeSettings_MapChangeUnreadiesPlayers(t *testing.T) {
	_, m, host, b, _ := threePlayerRoom(t, true)
	require.NoError(t, m.Ready(b))

	next := roomData("scrims")
	next.BeatmapMD5 = "ffffffffffffffffffffffffffffffff"
	require.NoError(t, m.ChangeSettings(host, next))

	d := m.Data()
	assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[1])
}

func TestChangeMods_FreeModSplitsSpeedFromSlotMods(t *testing.T) {
	_, m, host, b, _ := threePlayerRoom(t, true)

	free := roomData("scrims")
	free.FreeMods = true
	require.NoError(t, m.ChangeSettings(host, free))

	// Host picks DoubleTime(64) + Hidden(8): speed stays on the room, the
	// rest lands on the host's slot.
	require.NoError(t, m.ChangeMods(host, 64|8))
	d := m.Data()
	assert.Equal(t, int32(64), d.Mods)
	assert.Equal(t, int32(8), d.SlotMods[0])

	// Non-hosts only touch their own slot.
	require.NoError(t, m.ChangeMods(b, 1))
	d = m.Data()
	assert.Equal(t, int32(64), d.Mods)
	assert.Equal(t, int32(1), d.SlotMods[1])

	// Without free-mod, a non-host may not change anything.
	locked := roomData("scrims")
	require.NoError(t, m.ChangeSettings(host, locked))
	assert.ErrorIs(t, m.ChangeMods(b, 8), ErrNotHost)
}

func TestLock_TogglesAndEvictsToOpenSlot(t *testing.T) {
	_, m, host, b, _ := threePlayerRoom(t, true)

	require.NoError(t, m.Lock(host, 5))
	assert.Equal(t, uint8(SlotLocked), m.Data().SlotStatuses[5])
	require.NoError(t, m.Lock(host, 5))
	assert.Equal(t, uint8(SlotOpen), m.Data().SlotStatuses[5])

	// Locking b's seat relocates b and locks the vacated slot.
	require.NoError(t, m.Lock(host, 1))
	d := m.Data()
	assert.Equal(t, uint8(SlotLocked), d.SlotStatuses[1])
	found := false
	for i := range d.SlotUserIDs {
		if d.SlotUserIDs[i] == b.ID {
			found = true
		}
	}
	assert.True(t, found, "b still seated somewhere")

	assert.ErrorIs(t, m.Lock(b, 4), ErrNotHost)
}

func TestSkipAndLoad_RequireFullVotes(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))
	for _, s := range []*session.Session{host, b, c} {
		s.Drain()
	}

	require.NoError(t, m.LoadComplete(host))
	require.NoError(t, m.LoadComplete(b))
	assert.NotContains(t, opcodesOf(t, c), packet.ServerMatchAllPlayersLoaded)
	require.NoError(t, m.LoadComplete(c))
	assert.Contains(t, opcodesOf(t, c), packet.ServerMatchAllPlayersLoaded)

	require.NoError(t, m.SkipRequest(host))
	require.NoError(t, m.SkipRequest(b))
	assert.NotContains(t, opcodesOf(t, c), packet.ServerMatchSkip)
	require.NoError(t, m.SkipRequest(c))
	assert.Contains(t, opcodesOf(t, c), packet.ServerMatchSkip)
}

func TestAbort_HostOnlyResetsRound(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))

	assert.ErrorIs(t, m.Abort(b), ErrNotHost)
	require.NoError(t, m.Abort(host))

	d := m.Data()
	assert.False(t, d.InProgress)
	assert.Equal(t, uint8(SlotNotReady), d.SlotStatuses[0])
	assert.Contains(t, opcodesOf(t, b), packet.ServerMatchAbort)
}

func TestScoreFrame_RelayedToOthersWithSlotStamp(t *testing.T) {
	_, m, host, b, c := threePlayerRoom(t, true)
	for _, s := range []*session.Session{host, b, c} {
		require.NoError(t, m.Ready(s))
	}
	require.NoError(t, m.Start(host))
	for _, s := range []*session.Session{host, b, c} {
		s.Drain()
	}

	frame := []byte{1, 0, 0, 0, 0xff, 9, 9, 9}
	require.NoError(t, m.ScoreFrame(b, frame))

	assert.True(t, b.QueueEmpty(), "sender does not hear its own frame")
	pkts, err := packet.Split(host.Drain())
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, packet.ServerMatchScoreUpdate, pkts[0].ID)
	assert.Equal(t, byte(1), pkts[0].Data[4], "stamped with b's slot index")
}

func TestBroadcastOnMutation_OccupantsSeeEveryChange(t *testing.T) {
	_, m, _, b, _ := threePlayerRoom(t, true)
	require.NoError(t, m.Ready(b))
	assert.Contains(t, opcodesOf(t, b), packet.ServerUpdateMatch)
}
