package godaq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TaskBackend is the capability offered by buffered, task-based hardware: the
// device runs a continuous acquisition task and can block until a requested
// number of frames is available. One frame holds one sample for every channel
// the hardware exposes, interleaved channel 0 first.
type TaskBackend interface {
	// NumChannels returns how many channels the hardware task acquires.
	NumChannels() int

	// ReadFrames blocks until n frames are available and returns exactly
	// n*NumChannels() interleaved values.
	ReadFrames(n int) ([]float64, error)

	// Close ends the acquisition task and releases the device handle.
	Close() error
}

// TaskDevice adapts a TaskBackend to the Device contract. The backend already
// provides blocking fixed-count reads, so the adapter is a thin pass-through:
// it requests SamplesPerRead frames and de-interleaves the configured
// channels into block rows.
type TaskDevice struct {
	cfg     Config
	backend TaskBackend
	sessionState
}

// NewTaskDevice validates the configuration against the backend's channel
// count and wraps the already-running acquisition task.
func NewTaskDevice(cfg Config, backend TaskBackend) (*TaskDevice, error) {
	if err := cfg.validate("task"); err != nil {
		return nil, err
	}
	if err := cfg.checkChannelRange("task", backend.NumChannels()); err != nil {
		return nil, err
	}
	return &TaskDevice{cfg: cfg, backend: backend}, nil
}

// Read blocks on the backend's own fixed-count read.
func (d *TaskDevice) Read() (*mat.Dense, error) {
	if d.isStopped() {
		return nil, acqErr("task", "read", ErrStopped)
	}
	n := d.cfg.SamplesPerRead
	nchan := d.backend.NumChannels()
	frames, err := d.backend.ReadFrames(n)
	if err != nil {
		return nil, acqErr("task", "read", err)
	}
	if len(frames) != n*nchan {
		return nil, acqErr("task", "read",
			fmt.Errorf("backend returned %d values, want %d", len(frames), n*nchan))
	}

	block := newBlock(len(d.cfg.Channels), n)
	for s := 0; s < n; s++ {
		base := s * nchan
		for i, ch := range d.cfg.Channels {
			block.Set(i, s, frames[base+ch])
		}
	}
	return block, nil
}

// Stop closes the backend task. Calling it again is a no-op.
func (d *TaskDevice) Stop() error {
	if !d.markStopped() {
		return nil
	}
	if err := d.backend.Close(); err != nil {
		return acqErr("task", "stop", err)
	}
	return nil
}
