package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader decodes payload primitives. It carries a sticky error: after the
// first short read every subsequent Read returns a zero value, so handlers
// can decode a full field list and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Err reports the first decoding failure, if any.
func (r *Reader) Err() error { return r.err }

// Rest returns the undecoded remainder of the payload.
func (r *Reader) Rest() []byte { return r.buf[r.off:] }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

func (r *Reader) ReadBool() bool { return r.ReadUint8() != 0 }

// ReadString decodes the 0x00/0x0b string form.
func (r *Reader) ReadString() string {
	tag := r.ReadUint8()
	if r.err != nil || tag == 0x00 {
		return ""
	}
	if tag != 0x0b {
		r.err = fmt.Errorf("%w: bad string tag 0x%02x", ErrTruncated, tag)
		return ""
	}
	n := r.readUleb128()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *Reader) readUleb128() uint32 {
	var v uint32
	var shift uint
	for {
		b := r.ReadUint8()
		if r.err != nil {
			return 0
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v
		}
		shift += 7
		if shift > 28 {
			r.err = fmt.Errorf("%w: uleb128 overflow", ErrTruncated)
			return 0
		}
	}
}

// ReadInt32Slice decodes a uint16 count followed by that many int32s.
func (r *Reader) ReadInt32Slice() []int32 {
	n := r.ReadUint16()
	if r.err != nil {
		return nil
	}
	out := make([]int32, 0, n)
	for i := 0; i < int(n); i++ {
		out = append(out, r.ReadInt32())
		if r.err != nil {
			return nil
		}
	}
	return out
}

// ReadMatch decodes the match structure clients send when creating a room
// or changing its settings.
func (r *Reader) ReadMatch() MatchData {
	var m MatchData
	m.ID = r.ReadUint16()
	m.InProgress = r.ReadBool()
	_ = r.ReadUint8() // powerplay, unused
	m.Mods = r.ReadInt32()
	m.Name = r.ReadString()
	m.Password = r.ReadString()
	m.BeatmapName = r.ReadString()
	m.BeatmapID = r.ReadInt32()
	m.BeatmapMD5 = r.ReadString()
	for i := range m.SlotStatuses {
		m.SlotStatuses[i] = r.ReadUint8()
	}
	for i := range m.SlotTeams {
		m.SlotTeams[i] = r.ReadUint8()
	}
	for i := range m.SlotStatuses {
		if m.SlotStatuses[i]&slotHasOccupant != 0 {
			m.SlotUserIDs[i] = r.ReadInt32()
		}
	}
	m.HostID = r.ReadInt32()
	m.Mode = r.ReadUint8()
	m.WinCondition = r.ReadUint8()
	m.TeamType = r.ReadUint8()
	m.FreeMods = r.ReadBool()
	if m.FreeMods {
		for i := range m.SlotMods {
			m.SlotMods[i] = r.ReadInt32()
		}
	}
	m.Seed = r.ReadInt32()
	return m
}
