// Package packet implements the binary wire protocol spoken by game
// clients. Every packet is framed as a 7-byte header (uint16 opcode, one
// unused byte, uint32 payload length) followed by the payload; all integers
// are little-endian. Strings are either a single 0x00 byte (empty) or 0x0b
// followed by a uleb128 byte count and UTF-8 data.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the size of the frame header in bytes.
const HeaderLen = 7

// ErrTruncated reports a frame whose declared length runs past the end of
// the buffer. Packets decoded before the bad frame are still valid.
var ErrTruncated = errors.New("packet: truncated frame")

type OpCode uint16

// Client-to-server opcodes.
const (
	ClientChangeAction        OpCode = 0
	ClientSendPublicMessage   OpCode = 1
	ClientLogout              OpCode = 2
	ClientRequestStatsUpdate  OpCode = 3
	ClientPing                OpCode = 4
	ClientStartSpectating     OpCode = 16
	ClientStopSpectating      OpCode = 17
	ClientSpectateFrames      OpCode = 18
	ClientCantSpectate        OpCode = 21
	ClientSendPrivateMessage  OpCode = 25
	ClientPartLobby           OpCode = 29
	ClientJoinLobby           OpCode = 30
	ClientCreateMatch         OpCode = 31
	ClientJoinMatch           OpCode = 32
	ClientPartMatch           OpCode = 33
	ClientMatchChangeSlot     OpCode = 38
	ClientMatchReady          OpCode = 39
	ClientMatchLock           OpCode = 40
	ClientMatchChangeSettings OpCode = 41
	ClientMatchStart          OpCode = 44
	ClientMatchScoreUpdate    OpCode = 47
	ClientMatchComplete       OpCode = 49
	ClientMatchChangeMods     OpCode = 51
	ClientMatchLoadComplete   OpCode = 52
	ClientMatchNoBeatmap      OpCode = 54
	ClientMatchNotReady       OpCode = 55
	ClientMatchFailed         OpCode = 56
	ClientMatchHasBeatmap     OpCode = 59
	ClientMatchSkipRequest    OpCode = 60
	ClientChannelJoin         OpCode = 63
	ClientMatchTransferHost   OpCode = 70
	ClientMatchChangeTeam     OpCode = 77
	ClientChannelPart         OpCode = 78
	ClientUserStatsRequest    OpCode = 85
	ClientMatchChangePassword OpCode = 90
	ClientUserPresenceRequest OpCode = 97
	ClientPresenceRequestAll  OpCode = 98
)

// Server-to-client opcodes.
const (
	ServerUserID                OpCode = 5
	ServerSendMessage           OpCode = 7
	ServerPong                  OpCode = 8
	ServerUserStats             OpCode = 11
	ServerUserLogout            OpCode = 12
	ServerSpectatorJoined       OpCode = 13
	ServerSpectatorLeft         OpCode = 14
	ServerSpectateFrames        OpCode = 15
	ServerSpectatorCantSpectate OpCode = 22
	ServerNotification          OpCode = 24
	ServerUpdateMatch           OpCode = 26
	ServerNewMatch              OpCode = 27
	ServerDisposeMatch          OpCode = 28
	ServerMatchJoinSuccess      OpCode = 36
	ServerMatchJoinFail         OpCode = 37
	ServerFellowSpectatorJoined OpCode = 42
	ServerFellowSpectatorLeft   OpCode = 43
	ServerMatchStart            OpCode = 46
	ServerMatchScoreUpdate      OpCode = 48
	ServerMatchTransferHost     OpCode = 50
	ServerMatchAllPlayersLoaded OpCode = 53
	ServerMatchPlayerFailed     OpCode = 57
	ServerMatchComplete         OpCode = 58
	ServerMatchSkip             OpCode = 61
	ServerChannelJoinSuccess    OpCode = 64
	ServerChannelInfo           OpCode = 65
	ServerChannelKick           OpCode = 66
	ServerChannelAutoJoin       OpCode = 67
	ServerPrivileges            OpCode = 71
	ServerProtocolVersion       OpCode = 75
	ServerMatchPlayerSkipped    OpCode = 81
	ServerUserPresence          OpCode = 83
	ServerRestart               OpCode = 86
	ServerChannelInfoEnd        OpCode = 89
	ServerMatchChangePassword   OpCode = 91
	ServerMatchAbort            OpCode = 106
)

// ProtocolVersion is the negotiated protocol revision sent on login.
const ProtocolVersion = 19

// Packet is one decoded frame: its opcode and raw payload bytes.
type Packet struct {
	ID   OpCode
	Data []byte
}

// Split decodes a request body into frames. Decoding is tolerant of a bad
// suffix: every well-formed frame before the first short read is returned,
// and the short read is reported as ErrTruncated. The returned payloads
// alias the input buffer.
func Split(body []byte) ([]Packet, error) {
	var out []Packet
	for len(body) > 0 {
		if len(body) < HeaderLen {
			return out, fmt.Errorf("%w: %d byte header remnant", ErrTruncated, len(body))
		}
		op := OpCode(binary.LittleEndian.Uint16(body[0:2]))
		size := binary.LittleEndian.Uint32(body[3:7])
		body = body[HeaderLen:]
		if uint64(size) > uint64(len(body)) {
			return out, fmt.Errorf("%w: opcode %d declares %d bytes, %d remain", ErrTruncated, op, size, len(body))
		}
		out = append(out, Packet{ID: op, Data: body[:size]})
		body = body[size:]
	}
	return out, nil
}
