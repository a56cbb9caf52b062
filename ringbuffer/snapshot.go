package ringbuffer

import (
	"encoding/binary"
	"fmt"
)

// bytesPerSample is the width of one raw count in the shared buffer.
const bytesPerSample = 2

// SnapshotReader exposes a frame-aligned, read-only view of a shared-memory
// Buffer. One frame is one little-endian int16 count per channel, interleaved
// channel 0 first; values come back as float64 raw counts. Its method set
// matches the ring-backend capability the godaq ring adapter polls.
type SnapshotReader struct {
	buf        *Buffer
	nchan      int
	frameBytes int
}

// OpenSnapshotReader opens the named shm regions for a stream of nchan
// channels. It fails if the acquisition service has not created the buffer
// or if the buffer capacity is not frame-aligned.
func OpenSnapshotReader(rawName, descName string, nchan int) (*SnapshotReader, error) {
	if nchan <= 0 {
		return nil, fmt.Errorf("snapshot reader needs a positive channel count, have %d", nchan)
	}
	buf, err := NewBuffer(rawName, descName)
	if err != nil {
		return nil, err
	}
	if err = buf.Open(); err != nil {
		return nil, fmt.Errorf("could not open ring buffer shm:%s: %v", rawName, err)
	}
	r := &SnapshotReader{buf: buf, nchan: nchan, frameBytes: nchan * bytesPerSample}
	size, err := buf.Size()
	if err != nil {
		buf.Close()
		return nil, err
	}
	if size%uint64(r.frameBytes) != 0 {
		buf.Close()
		return nil, fmt.Errorf("buffer size %d is not a multiple of the %d-byte frame", size, r.frameBytes)
	}
	return r, nil
}

// NumChannels returns the channel count of each frame.
func (r *SnapshotReader) NumChannels() int { return r.nchan }

// Cursors returns the write position and the oldest retained frame, both in
// frames since the acquisition service started.
func (r *SnapshotReader) Cursors() (write, oldest uint64, err error) {
	w, err := r.buf.WritePointer()
	if err != nil {
		return 0, 0, err
	}
	size, err := r.buf.Size()
	if err != nil {
		return 0, 0, err
	}
	write = w / uint64(r.frameBytes)
	retained := size / uint64(r.frameBytes)
	if write > retained {
		oldest = write - retained
	}
	return write, oldest, nil
}

// ReadAt copies nframes frames starting at the given frame cursor.
func (r *SnapshotReader) ReadAt(cursor uint64, nframes int) ([]float64, error) {
	raw := make([]byte, nframes*r.frameBytes)
	if err := r.buf.ReadAt(cursor*uint64(r.frameBytes), raw); err != nil {
		return nil, err
	}
	out := make([]float64, nframes*r.nchan)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	return out, nil
}

// Close unmaps the shared regions.
func (r *SnapshotReader) Close() error { return r.buf.Close() }
