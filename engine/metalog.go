package engine

import (
	"encoding/binary"
	"io"
	"os"
)

// MetaLog is the append-only metadata log file (component 2): the
// authoritative history of namespace mutations. It owns the append
// position and the durability primitive; it has no knowledge of record
// semantics, only of the 9-byte envelope (component 1).
//
// Grounded on the header+length-prefixed wire style of
// mrpc/rawserver.go, collapsed from a network protocol to a flat file.
type MetaLog struct {
	file   *os.File
	length int64
}

func openMetaLog(path string) (*MetaLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MetaLog{file: f, length: info.Size()}, nil
}

// append writes one framed record at the current end of the log and
// advances the append position past it. The caller (engine, under its exclusive
// lock) is responsible for ordering: §5 requires records to appear in
// the order their logical operations complete.
func (l *MetaLog) append(recType byte, payload []byte) error {
	buf := encodeRecord(recType, payload)
	n, err := l.file.WriteAt(buf, l.length)
	if err != nil {
		return err
	}
	l.length += int64(n)
	return nil
}

// flush pushes the log's buffered kernel state to stable storage
// (flush_meta in §4.2).
func (l *MetaLog) flush() error {
	return l.file.Sync()
}

func (l *MetaLog) close() error {
	return l.file.Close()
}

// decodedRecord is one successfully parsed, CRC-verified record read
// back from the log during replay.
type decodedRecord struct {
	Type    byte
	Payload []byte
}

// readAll walks the log from the beginning, yielding each valid record
// to fn. Short reads (a partially written trailing record) stop the
// walk without error, per §4.2/§4.7: "the file is not truncated
// proactively". CRC failures skip just that record and continue when
// skipOnCRCFailure is true; when it is false the walk stops there (the
// escape hatch §4.7 mentions).
func (l *MetaLog) readAll(skipOnCRCFailure bool, fn func(decodedRecord) error, onSkip func()) error {
	header := make([]byte, recordHeaderSize)
	var off int64
	for {
		n, err := l.file.ReadAt(header, off)
		if err != nil && err != io.EOF {
			return err
		}
		if n < recordHeaderSize {
			return nil
		}
		recType := header[0]
		payloadLen := binary.LittleEndian.Uint32(header[1:5])
		wantCRC := binary.LittleEndian.Uint32(header[5:9])

		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			pn, err := l.file.ReadAt(payload, off+recordHeaderSize)
			if err != nil && err != io.EOF {
				return err
			}
			if pn < int(payloadLen) {
				return nil
			}
		}

		recordEnd := off + recordHeaderSize + int64(payloadLen)
		if crc32sum(payload) != wantCRC {
			if !skipOnCRCFailure {
				return nil
			}
			if onSkip != nil {
				onSkip()
			}
			off = recordEnd
			continue
		}

		if err := fn(decodedRecord{Type: recType, Payload: payload}); err != nil {
			return err
		}
		off = recordEnd
	}
}
