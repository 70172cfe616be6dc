package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_RoundTripsSimplePackets(t *testing.T) {
	body := append(UserID(1001), Notification("hello")...)
	body = append(body, Pong()...)

	pkts, err := Split(body)
	require.NoError(t, err)
	require.Len(t, pkts, 3)

	assert.Equal(t, ServerUserID, pkts[0].ID)
	assert.Equal(t, int32(1001), NewReader(pkts[0].Data).ReadInt32())

	assert.Equal(t, ServerNotification, pkts[1].ID)
	assert.Equal(t, "hello", NewReader(pkts[1].Data).ReadString())

	assert.Equal(t, ServerPong, pkts[2].ID)
	assert.Empty(t, pkts[2].Data)
}

func TestSplit_TruncatedSuffixKeepsPrefix(t *testing.T) {
	good := Notification("first")
	// Declare a 100-byte payload but provide only 3.
	bad := []byte{0x18, 0x00, 0x00, 100, 0, 0, 0, 1, 2, 3}

	pkts, err := Split(append(good, bad...))
	require.ErrorIs(t, err, ErrTruncated)
	require.Len(t, pkts, 1)
	assert.Equal(t, "first", NewReader(pkts[0].Data).ReadString())
}

func TestSplit_HeaderRemnant(t *testing.T) {
	pkts, err := Split([]byte{0x05, 0x00, 0x00})
	require.ErrorIs(t, err, ErrTruncated)
	assert.Empty(t, pkts)
}

func TestSplit_EmptyBody(t *testing.T) {
	pkts, err := Split(nil)
	require.NoError(t, err)
	assert.Empty(t, pkts)
}

func TestString_RoundTripsLongAndUnicode(t *testing.T) {
	for _, s := range []string{
		"",
		"plain",
		"ünïcödé ♥ テスト",
		strings.Repeat("x", 300), // forces a two-byte uleb128 length
	} {
		b := NewWriter(ServerNotification).WriteString(s).Bytes()
		pkts, err := Split(b)
		require.NoError(t, err)
		r := NewReader(pkts[0].Data)
		assert.Equal(t, s, r.ReadString())
		require.NoError(t, r.Err())
	}
}

func TestReader_StickyErrorOnShortPayload(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_ = r.ReadInt32()
	require.ErrorIs(t, r.Err(), ErrTruncated)
	assert.Equal(t, int32(0), r.ReadInt32())
	assert.Equal(t, "", r.ReadString())
}

func TestReader_Int32Slice(t *testing.T) {
	b := NewWriter(ClientUserStatsRequest).
		WriteUint16(3).
		WriteInt32(7).WriteInt32(-1).WriteInt32(42).
		Bytes()
	pkts, err := Split(b)
	require.NoError(t, err)
	r := NewReader(pkts[0].Data)
	assert.Equal(t, []int32{7, -1, 42}, r.ReadInt32Slice())
	require.NoError(t, r.Err())
}

func TestMatchData_RoundTrip(t *testing.T) {
	in := MatchData{
		ID:           42,
		InProgress:   true,
		Mods:         64,
		Name:         "late night lobby",
		Password:     "hunter2",
		BeatmapName:  "artist - title [diff]",
		BeatmapID:    1337,
		BeatmapMD5:   "0123456789abcdef0123456789abcdef",
		HostID:       1001,
		Mode:         0,
		WinCondition: 1,
		TeamType:     2,
		FreeMods:     true,
		Seed:         99,
	}
	in.SlotStatuses[0] = wireSlotReady
	in.SlotStatuses[1] = wireSlotNotReady
	in.SlotStatuses[2] = wireSlotLocked
	in.SlotTeams[0] = 1
	in.SlotTeams[1] = 2
	in.SlotUserIDs[0] = 1001
	in.SlotUserIDs[1] = 1002
	in.SlotMods[1] = 8
	for i := 3; i < 16; i++ {
		in.SlotStatuses[i] = wireSlotOpen
	}

	pkts, err := Split(MatchJoinSuccess(in))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, ServerMatchJoinSuccess, pkts[0].ID)

	r := NewReader(pkts[0].Data)
	out := r.ReadMatch()
	require.NoError(t, r.Err())
	assert.Equal(t, in, out)
}

func TestUpdateMatch_RedactsPassword(t *testing.T) {
	in := MatchData{ID: 1, Name: "room", Password: "secret"}
	for i := range in.SlotStatuses {
		in.SlotStatuses[i] = wireSlotOpen
	}

	pkts, err := Split(UpdateMatch(in, false))
	require.NoError(t, err)
	r := NewReader(pkts[0].Data)
	out := r.ReadMatch()
	require.NoError(t, r.Err())
	assert.NotEqual(t, "secret", out.Password)
	assert.NotEmpty(t, out.Password, "clients use a non-empty password to show the lock icon")
}

func TestUserStats_RoundTrip(t *testing.T) {
	in := Stats{
		UserID: 5,
		Action: Action{
			ID:         2,
			InfoText:   "artist - title",
			BeatmapMD5: "deadbeef",
			Mods:       72,
			Mode:       1,
			BeatmapID:  99,
		},
		RankedScore: 123456789,
		Accuracy:    0.9812,
		PlayCount:   4242,
		TotalScore:  987654321,
		GlobalRank:  17,
		PP:          321,
	}
	pkts, err := Split(UserStats(in))
	require.NoError(t, err)
	r := NewReader(pkts[0].Data)
	out := Stats{
		UserID: r.ReadInt32(),
		Action: Action{
			ID:         r.ReadUint8(),
			InfoText:   r.ReadString(),
			BeatmapMD5: r.ReadString(),
			Mods:       r.ReadUint32(),
			Mode:       r.ReadUint8(),
			BeatmapID:  r.ReadInt32(),
		},
		RankedScore: r.ReadInt64(),
		Accuracy:    r.ReadFloat32(),
		PlayCount:   r.ReadInt32(),
		TotalScore:  r.ReadInt64(),
		GlobalRank:  r.ReadInt32(),
		PP:          r.ReadInt16(),
	}
	require.NoError(t, r.Err())
	assert.Equal(t, in, out)
}
