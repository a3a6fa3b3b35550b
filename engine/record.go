package engine

import (
	"encoding/binary"
	"hash/crc32"
)

// Record types (§6.1). Values double as the on-disk tag byte, so the
// numbering is part of the wire format and must not be reassigned.
const (
	RecCreate      = byte(1)
	RecExtent      = byte(2)
	RecTruncate    = byte(3)
	RecUnlink      = byte(4)
	RecRename      = byte(5)
	RecMkdir       = byte(6)
	RecSetxattr    = byte(7)
	RecRemovexattr = byte(8)
	RecTimes       = byte(9)
)

// recordHeaderSize is the fixed 9-byte envelope preceding every
// payload: 1 byte type, 4 bytes little-endian payload length, 4 bytes
// little-endian CRC-32 of the payload alone.
const recordHeaderSize = 9

// crc32sum computes the standard reflected CRC-32 (polynomial
// 0xEDB88320, init 0xFFFFFFFF, final XOR 0xFFFFFFFF) over payload. The
// stdlib's IEEE table is exactly this polynomial, so there is nothing
// to hand-roll here -- per spec.md's framing this primitive belongs to
// the adapter/runtime, not to the engine's own logic.
func crc32sum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// encodeRecord builds the full on-disk bytes (header + payload) for one
// log record.
func encodeRecord(recType byte, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	buf[0] = recType
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[5:9], crc32sum(payload))
	copy(buf[recordHeaderSize:], payload)
	return buf
}

// --- payload encode/decode, one pair per record type in the §6.1 table ---

type createPayload struct {
	ID        uint64
	Mode      uint32
	Size      uint64
	Timestamp uint64
	Path      string
	// SymlinkTarget is present iff Mode's file-type bits indicate a
	// symlink; absent (empty, IsSymlink false) otherwise.
	HasTarget     bool
	SymlinkTarget string
}

func encodeCreate(p createPayload) []byte {
	pathBytes := []byte(p.Path)
	size := 8 + 4 + 8 + 8 + 4 + len(pathBytes)
	var targetBytes []byte
	if p.HasTarget {
		targetBytes = []byte(p.SymlinkTarget)
		size += 4 + len(targetBytes)
	}
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], p.ID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], p.Mode)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], p.Size)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.Timestamp)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(pathBytes)))
	off += 4
	copy(buf[off:], pathBytes)
	off += len(pathBytes)
	if p.HasTarget {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(targetBytes)))
		off += 4
		copy(buf[off:], targetBytes)
		off += len(targetBytes)
	}
	return buf
}

func decodeCreate(payload []byte) (createPayload, error) {
	var p createPayload
	if len(payload) < 32 {
		return p, ErrInvalid
	}
	off := 0
	p.ID = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	p.Mode = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	p.Size = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	p.Timestamp = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	pathLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if off+pathLen > len(payload) {
		return p, ErrInvalid
	}
	p.Path = string(payload[off : off+pathLen])
	off += pathLen
	if off < len(payload) {
		if off+4 > len(payload) {
			return p, ErrInvalid
		}
		targetLen := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if off+targetLen > len(payload) {
			return p, ErrInvalid
		}
		p.HasTarget = true
		p.SymlinkTarget = string(payload[off : off+targetLen])
		off += targetLen
	}
	return p, nil
}

type extentPayload struct {
	ID            uint64
	LogicalOffset uint64
	DataOffset    uint64
	Length        uint32
	NewSize       uint64
}

func encodeExtent(p extentPayload) []byte {
	buf := make([]byte, 8+8+8+4+8)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], p.ID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.LogicalOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.DataOffset)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], p.Length)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], p.NewSize)
	return buf
}

func decodeExtent(payload []byte) (extentPayload, error) {
	var p extentPayload
	if len(payload) != 36 {
		return p, ErrInvalid
	}
	off := 0
	p.ID = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	p.LogicalOffset = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	p.DataOffset = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	p.Length = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	p.NewSize = binary.LittleEndian.Uint64(payload[off:])
	return p, nil
}

type truncatePayload struct {
	ID      uint64
	NewSize uint64
}

func encodeTruncate(p truncatePayload) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], p.ID)
	binary.LittleEndian.PutUint64(buf[8:], p.NewSize)
	return buf
}

func decodeTruncate(payload []byte) (truncatePayload, error) {
	var p truncatePayload
	if len(payload) != 16 {
		return p, ErrInvalid
	}
	p.ID = binary.LittleEndian.Uint64(payload[0:])
	p.NewSize = binary.LittleEndian.Uint64(payload[8:])
	return p, nil
}

type unlinkPayload struct {
	ID uint64
}

func encodeUnlink(p unlinkPayload) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.ID)
	return buf
}

func decodeUnlink(payload []byte) (unlinkPayload, error) {
	var p unlinkPayload
	if len(payload) != 8 {
		return p, ErrInvalid
	}
	p.ID = binary.LittleEndian.Uint64(payload)
	return p, nil
}

type renamePayload struct {
	ID      uint64
	NewPath string
}

func encodeRename(p renamePayload) []byte {
	nb := []byte(p.NewPath)
	buf := make([]byte, 8+4+len(nb))
	binary.LittleEndian.PutUint64(buf[0:], p.ID)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(nb)))
	copy(buf[12:], nb)
	return buf
}

func decodeRename(payload []byte) (renamePayload, error) {
	var p renamePayload
	if len(payload) < 12 {
		return p, ErrInvalid
	}
	p.ID = binary.LittleEndian.Uint64(payload[0:])
	pl := int(binary.LittleEndian.Uint32(payload[8:]))
	if 12+pl != len(payload) {
		return p, ErrInvalid
	}
	p.NewPath = string(payload[12 : 12+pl])
	return p, nil
}

type setxattrPayload struct {
	ID    uint64
	Name  string
	Value []byte
}

func encodeSetxattr(p setxattrPayload) []byte {
	nb := []byte(p.Name)
	buf := make([]byte, 8+4+4+len(nb)+len(p.Value))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], p.ID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(nb)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Value)))
	off += 4
	copy(buf[off:], nb)
	off += len(nb)
	copy(buf[off:], p.Value)
	return buf
}

func decodeSetxattr(payload []byte) (setxattrPayload, error) {
	var p setxattrPayload
	if len(payload) < 16 {
		return p, ErrInvalid
	}
	off := 0
	p.ID = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	nameLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	valueLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if off+nameLen+valueLen != len(payload) {
		return p, ErrInvalid
	}
	p.Name = string(payload[off : off+nameLen])
	off += nameLen
	p.Value = append([]byte(nil), payload[off:off+valueLen]...)
	return p, nil
}

type removexattrPayload struct {
	ID   uint64
	Name string
}

func encodeRemovexattr(p removexattrPayload) []byte {
	nb := []byte(p.Name)
	buf := make([]byte, 8+4+len(nb))
	binary.LittleEndian.PutUint64(buf[0:], p.ID)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(nb)))
	copy(buf[12:], nb)
	return buf
}

func decodeRemovexattr(payload []byte) (removexattrPayload, error) {
	var p removexattrPayload
	if len(payload) < 12 {
		return p, ErrInvalid
	}
	p.ID = binary.LittleEndian.Uint64(payload[0:])
	nl := int(binary.LittleEndian.Uint32(payload[8:]))
	if 12+nl != len(payload) {
		return p, ErrInvalid
	}
	p.Name = string(payload[12 : 12+nl])
	return p, nil
}

type timesPayload struct {
	ID        uint64
	AtimeSec  int64
	MtimeSec  int64
}

func encodeTimes(p timesPayload) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:], p.ID)
	binary.LittleEndian.PutUint64(buf[8:], uint64(p.AtimeSec))
	binary.LittleEndian.PutUint64(buf[16:], uint64(p.MtimeSec))
	return buf
}

func decodeTimes(payload []byte) (timesPayload, error) {
	var p timesPayload
	if len(payload) != 24 {
		return p, ErrInvalid
	}
	p.ID = binary.LittleEndian.Uint64(payload[0:])
	p.AtimeSec = int64(binary.LittleEndian.Uint64(payload[8:]))
	p.MtimeSec = int64(binary.LittleEndian.Uint64(payload[16:]))
	return p, nil
}
