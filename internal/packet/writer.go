package packet

import (
	"encoding/binary"
	"math"
)

// Slot status bits on the wire. A slot carries an occupant when any of the
// occupant bits are set.
const (
	wireSlotOpen     = 1 << 0
	wireSlotLocked   = 1 << 1
	wireSlotNotReady = 1 << 2
	wireSlotReady    = 1 << 3
	wireSlotNoMap    = 1 << 4
	wireSlotPlaying  = 1 << 5
	wireSlotComplete = 1 << 6
	wireSlotQuit     = 1 << 7

	slotHasOccupant = wireSlotNotReady | wireSlotReady | wireSlotNoMap | wireSlotPlaying | wireSlotComplete
)

// MatchData is the wire representation of a multiplayer room, shared by
// the client settings packet and every server-side room snapshot.
type MatchData struct {
	ID           uint16
	InProgress   bool
	Mods         int32
	Name         string
	Password     string
	BeatmapName  string
	BeatmapID    int32
	BeatmapMD5   string
	SlotStatuses [16]uint8
	SlotTeams    [16]uint8
	SlotUserIDs  [16]int32
	HostID       int32
	Mode         uint8
	WinCondition uint8
	TeamType     uint8
	FreeMods     bool
	SlotMods     [16]int32
	Seed         int32
}

// Action is a session's self-reported status shown to other users.
type Action struct {
	ID         uint8
	InfoText   string
	BeatmapMD5 string
	Mods       uint32
	Mode       uint8
	BeatmapID  int32
}

// Stats is the numeric profile block sent with ServerUserStats.
type Stats struct {
	UserID      int32
	Action      Action
	RankedScore int64
	Accuracy    float32
	PlayCount   int32
	TotalScore  int64
	GlobalRank  int32
	PP          int16
}

// Presence is the identity block sent with ServerUserPresence.
type Presence struct {
	UserID      int32
	Name        string
	UTCOffset   uint8
	CountryCode uint8
	Privileges  uint8
	Longitude   float32
	Latitude    float32
	GlobalRank  int32
}

// Writer builds one packet. The frame is materialized only by Bytes, so a
// partially-built packet is never observable on a queue.
type Writer struct {
	op  OpCode
	buf []byte
}

func NewWriter(op OpCode) *Writer {
	return &Writer{op: op}
}

func (w *Writer) WriteUint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) WriteInt8(v int8) *Writer { return w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) WriteInt16(v int16) *Writer { return w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) WriteInt32(v int32) *Writer { return w.WriteUint32(uint32(v)) }

func (w *Writer) WriteUint64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) WriteInt64(v int64) *Writer { return w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) *Writer {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteString(s string) *Writer {
	if s == "" {
		return w.WriteUint8(0x00)
	}
	w.WriteUint8(0x0b)
	w.writeUleb128(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

func (w *Writer) writeUleb128(v uint32) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteRaw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Bytes returns the complete frame: header plus payload.
func (w *Writer) Bytes() []byte {
	out := make([]byte, 0, HeaderLen+len(w.buf))
	out = binary.LittleEndian.AppendUint16(out, uint16(w.op))
	out = append(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(w.buf)))
	return append(out, w.buf...)
}

func (w *Writer) writeMatch(m MatchData, includePassword bool) *Writer {
	w.WriteUint16(m.ID)
	w.WriteBool(m.InProgress)
	w.WriteUint8(0) // powerplay
	w.WriteInt32(m.Mods)
	w.WriteString(m.Name)
	if includePassword {
		w.WriteString(m.Password)
	} else if m.Password != "" {
		w.WriteString("redacted")
	} else {
		w.WriteString("")
	}
	w.WriteString(m.BeatmapName)
	w.WriteInt32(m.BeatmapID)
	w.WriteString(m.BeatmapMD5)
	for _, st := range m.SlotStatuses {
		w.WriteUint8(st)
	}
	for _, t := range m.SlotTeams {
		w.WriteUint8(t)
	}
	for i, st := range m.SlotStatuses {
		if st&slotHasOccupant != 0 {
			w.WriteInt32(m.SlotUserIDs[i])
		}
	}
	w.WriteInt32(m.HostID)
	w.WriteUint8(m.Mode)
	w.WriteUint8(m.WinCondition)
	w.WriteUint8(m.TeamType)
	w.WriteBool(m.FreeMods)
	if m.FreeMods {
		for _, mods := range m.SlotMods {
			w.WriteInt32(mods)
		}
	}
	w.WriteInt32(m.Seed)
	return w
}

// Typed server packet builders. Each returns a fully framed packet ready
// to append to an outbound queue.

func UserID(id int32) []byte {
	return NewWriter(ServerUserID).WriteInt32(id).Bytes()
}

func Notification(msg string) []byte {
	return NewWriter(ServerNotification).WriteString(msg).Bytes()
}

func ProtocolVersionPacket() []byte {
	return NewWriter(ServerProtocolVersion).WriteInt32(ProtocolVersion).Bytes()
}

func Privileges(p int32) []byte {
	return NewWriter(ServerPrivileges).WriteInt32(p).Bytes()
}

func Pong() []byte {
	return NewWriter(ServerPong).Bytes()
}

func Restart(delayMS int32) []byte {
	return NewWriter(ServerRestart).WriteInt32(delayMS).Bytes()
}

func SendMessage(sender, text, recipient string, senderID int32) []byte {
	return NewWriter(ServerSendMessage).
		WriteString(sender).
		WriteString(text).
		WriteString(recipient).
		WriteInt32(senderID).
		Bytes()
}

func ChannelInfo(name, topic string, members int16) []byte {
	return NewWriter(ServerChannelInfo).
		WriteString(name).
		WriteString(topic).
		WriteInt16(members).
		Bytes()
}

func ChannelAutoJoin(name, topic string, members int16) []byte {
	return NewWriter(ServerChannelAutoJoin).
		WriteString(name).
		WriteString(topic).
		WriteInt16(members).
		Bytes()
}

func ChannelInfoEnd() []byte {
	return NewWriter(ServerChannelInfoEnd).Bytes()
}

func ChannelJoinSuccess(name string) []byte {
	return NewWriter(ServerChannelJoinSuccess).WriteString(name).Bytes()
}

func ChannelKick(name string) []byte {
	return NewWriter(ServerChannelKick).WriteString(name).Bytes()
}

func UserStats(s Stats) []byte {
	return NewWriter(ServerUserStats).
		WriteInt32(s.UserID).
		WriteUint8(s.Action.ID).
		WriteString(s.Action.InfoText).
		WriteString(s.Action.BeatmapMD5).
		WriteUint32(s.Action.Mods).
		WriteUint8(s.Action.Mode).
		WriteInt32(s.Action.BeatmapID).
		WriteInt64(s.RankedScore).
		WriteFloat32(s.Accuracy).
		WriteInt32(s.PlayCount).
		WriteInt64(s.TotalScore).
		WriteInt32(s.GlobalRank).
		WriteInt16(s.PP).
		Bytes()
}

func UserPresence(p Presence) []byte {
	return NewWriter(ServerUserPresence).
		WriteInt32(p.UserID).
		WriteString(p.Name).
		WriteUint8(p.UTCOffset + 24).
		WriteUint8(p.CountryCode).
		WriteUint8(p.Privileges).
		WriteFloat32(p.Longitude).
		WriteFloat32(p.Latitude).
		WriteInt32(p.GlobalRank).
		Bytes()
}

func UserLogout(id int32) []byte {
	return NewWriter(ServerUserLogout).WriteInt32(id).WriteUint8(0).Bytes()
}

func SpectatorJoined(id int32) []byte {
	return NewWriter(ServerSpectatorJoined).WriteInt32(id).Bytes()
}

func SpectatorLeft(id int32) []byte {
	return NewWriter(ServerSpectatorLeft).WriteInt32(id).Bytes()
}

func FellowSpectatorJoined(id int32) []byte {
	return NewWriter(ServerFellowSpectatorJoined).WriteInt32(id).Bytes()
}

func FellowSpectatorLeft(id int32) []byte {
	return NewWriter(ServerFellowSpectatorLeft).WriteInt32(id).Bytes()
}

func SpectatorCantSpectate(id int32) []byte {
	return NewWriter(ServerSpectatorCantSpectate).WriteInt32(id).Bytes()
}

func SpectateFrames(raw []byte) []byte {
	return NewWriter(ServerSpectateFrames).WriteRaw(raw).Bytes()
}

func NewMatch(m MatchData) []byte {
	return NewWriter(ServerNewMatch).writeMatch(m, false).Bytes()
}

func UpdateMatch(m MatchData, includePassword bool) []byte {
	return NewWriter(ServerUpdateMatch).writeMatch(m, includePassword).Bytes()
}

func DisposeMatch(id int32) []byte {
	return NewWriter(ServerDisposeMatch).WriteInt32(id).Bytes()
}

func MatchJoinSuccess(m MatchData) []byte {
	return NewWriter(ServerMatchJoinSuccess).writeMatch(m, true).Bytes()
}

func MatchJoinFail() []byte {
	return NewWriter(ServerMatchJoinFail).Bytes()
}

func MatchStart(m MatchData) []byte {
	return NewWriter(ServerMatchStart).writeMatch(m, true).Bytes()
}

func MatchScoreUpdate(frame []byte) []byte {
	return NewWriter(ServerMatchScoreUpdate).WriteRaw(frame).Bytes()
}

func MatchTransferHost() []byte {
	return NewWriter(ServerMatchTransferHost).Bytes()
}

func MatchAllPlayersLoaded() []byte {
	return NewWriter(ServerMatchAllPlayersLoaded).Bytes()
}

func MatchPlayerFailed(slotID int32) []byte {
	return NewWriter(ServerMatchPlayerFailed).WriteInt32(slotID).Bytes()
}

func MatchComplete() []byte {
	return NewWriter(ServerMatchComplete).Bytes()
}

func MatchSkip() []byte {
	return NewWriter(ServerMatchSkip).Bytes()
}

func MatchPlayerSkipped(userID int32) []byte {
	return NewWriter(ServerMatchPlayerSkipped).WriteInt32(userID).Bytes()
}

func MatchChangePassword(password string) []byte {
	return NewWriter(ServerMatchChangePassword).WriteString(password).Bytes()
}

func MatchAbort() []byte {
	return NewWriter(ServerMatchAbort).Bytes()
}
