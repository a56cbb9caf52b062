package godaq

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// RingBackend is the capability offered by hardware that continuously
// overwrites a fixed-depth ring buffer on the acquisition side. Positions are
// counted in frames since the session began; one frame holds one sample per
// channel, interleaved channel 0 first. The window [oldest, write) is what
// the ring currently retains.
type RingBackend interface {
	// NumChannels returns how many channels each frame carries.
	NumChannels() int

	// Cursors returns the backend's write position and the oldest frame
	// still retained.
	Cursors() (write, oldest uint64, err error)

	// ReadAt copies nframes frames starting at cursor, returning
	// nframes*NumChannels() interleaved values. It fails if the requested
	// range is no longer retained.
	ReadAt(cursor uint64, nframes int) ([]float64, error)

	// Close releases the backend connection.
	Close() error
}

// RingDevice adapts a RingBackend to the Device contract by tracking a read
// cursor. Read polls the backend until SamplesPerRead new frames exist past
// the cursor, fetches exactly that many, and advances. Blocks from
// consecutive reads are therefore contiguous and non-overlapping.
//
// If the consumer polls slower than the ring's retention window, frames are
// overwritten before they are read. That is data loss, and Read reports it as
// an AcquisitionError rather than returning stale frames.
type RingDevice struct {
	cfg        Config
	backend    RingBackend
	cursor     uint64
	pollPeriod time.Duration
	sessionState
}

// NewRingDevice validates the configuration and positions the read cursor at
// the backend's current write position, so the first Read returns only
// samples acquired after construction.
func NewRingDevice(cfg Config, backend RingBackend) (*RingDevice, error) {
	if err := cfg.validate("ring"); err != nil {
		return nil, err
	}
	if err := cfg.checkChannelRange("ring", backend.NumChannels()); err != nil {
		return nil, err
	}
	write, _, err := backend.Cursors()
	if err != nil {
		return nil, configErr("ring", "construct", err)
	}

	// Poll at a small fraction of the block period, but not so fast that the
	// loop becomes a busy-wait.
	poll := cfg.blockPeriod() / 20
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	return &RingDevice{cfg: cfg, backend: backend, cursor: write, pollPeriod: poll}, nil
}

// Read polls until a full block of new frames is available past the cursor.
func (d *RingDevice) Read() (*mat.Dense, error) {
	if d.isStopped() {
		return nil, acqErr("ring", "read", ErrStopped)
	}
	n := uint64(d.cfg.SamplesPerRead)
	for {
		write, oldest, err := d.backend.Cursors()
		if err != nil {
			return nil, acqErr("ring", "read", err)
		}
		if d.cursor < oldest {
			lost := oldest - d.cursor
			return nil, acqErr("ring", "read",
				fmt.Errorf("overrun: %d frames were overwritten before they could be read", lost))
		}
		if write-d.cursor >= n {
			break
		}
		time.Sleep(d.pollPeriod)
		if d.isStopped() {
			return nil, acqErr("ring", "read", ErrStopped)
		}
	}

	frames, err := d.backend.ReadAt(d.cursor, d.cfg.SamplesPerRead)
	if err != nil {
		return nil, acqErr("ring", "read", err)
	}

	// The ring may have wrapped over the fetched region while it was being
	// copied. Re-check validity so a partially overwritten block is never
	// passed off as good data.
	if _, oldest, err := d.backend.Cursors(); err != nil {
		return nil, acqErr("ring", "read", err)
	} else if d.cursor < oldest {
		return nil, acqErr("ring", "read",
			fmt.Errorf("overrun: frames were overwritten while being copied"))
	}
	d.cursor += n

	nchan := d.backend.NumChannels()
	nsamp := d.cfg.SamplesPerRead
	block := newBlock(len(d.cfg.Channels), nsamp)
	for s := 0; s < nsamp; s++ {
		base := s * nchan
		for i, ch := range d.cfg.Channels {
			block.Set(i, s, frames[base+ch])
		}
	}
	return block, nil
}

// Stop closes the backend connection. Calling it again is a no-op.
func (d *RingDevice) Stop() error {
	if !d.markStopped() {
		return nil
	}
	if err := d.backend.Close(); err != nil {
		return acqErr("ring", "stop", err)
	}
	return nil
}
