package engine

import "os"

// DataSegment is the append-only file-content byte stream (component
// 3), addressed by absolute offset. It has no framing of its own --
// the metadata log's extent records are what give offsets meaning.
//
// Grounded on dataserver/io.go and dataserver/write_pipeline.go's
// append-then-ack sequencing, collapsed from a replicated block
// protocol to a single local file.
type DataSegment struct {
	file   *os.File
	length int64
}

func openDataSegment(path string) (*DataSegment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &DataSegment{file: f, length: info.Size()}, nil
}

// append writes data at the current end of the segment and returns the
// offset it was written at. Step 2 of the flush procedure in §4.5.
func (d *DataSegment) append(data []byte) (int64, error) {
	start := d.length
	n, err := d.file.WriteAt(data, start)
	if err != nil {
		return start, err
	}
	d.length += int64(n)
	return start, nil
}

// truncateTo rolls the segment back to a prior length. Used only by the
// flush pipeline's rollback-on-log-failure path (§4.5, §8 P9); the
// explicit truncate operation never shrinks the data segment (§4.4),
// only the extent list.
func (d *DataSegment) truncateTo(length int64) error {
	if err := d.file.Truncate(length); err != nil {
		return err
	}
	d.length = length
	return nil
}

func (d *DataSegment) readAt(buf []byte, offset int64) (int, error) {
	return d.file.ReadAt(buf, offset)
}

func (d *DataSegment) flush() error {
	return d.file.Sync()
}

func (d *DataSegment) close() error {
	return d.file.Close()
}

func (d *DataSegment) currentLength() int64 {
	return d.length
}
