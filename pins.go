package godaq

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// PinBackend is the capability offered by microcontroller-class hardware that
// can only report the current instantaneous value of a pin: no hardware
// batching, no timestamps.
type PinBackend interface {
	// Pins returns the pin identifiers the backend exposes.
	Pins() []int

	// ReadPin returns the current value of one pin.
	ReadPin(pin int) (float64, error)

	// Close releases the board connection.
	Close() error
}

// PinDevice adapts a PinBackend to the Device contract with software-timed
// sampling: each Read performs SamplesPerRead rounds, reading every
// configured pin once per round and pacing rounds to 1/Rate.
//
// The timing is approximate. Inter-sample jitter depends on host scheduling,
// so callers must not assume hard real-time behavior; consecutive reads are
// paced so that a caller looping at full speed sees blocks at close to the
// nominal rate on average.
type PinDevice struct {
	cfg     Config
	backend PinBackend
	pace    *pacer
	sessionState
}

// NewPinDevice validates the configured pins against the backend.
func NewPinDevice(cfg Config, backend PinBackend) (*PinDevice, error) {
	if err := cfg.validate("pin"); err != nil {
		return nil, err
	}
	available := make(map[int]bool)
	for _, pin := range backend.Pins() {
		available[pin] = true
	}
	for _, pin := range cfg.Channels {
		if !available[pin] {
			return nil, configErr("pin", "construct",
				fmt.Errorf("pin %d not exposed by backend (have %v)", pin, backend.Pins()))
		}
	}
	return &PinDevice{cfg: cfg, backend: backend, pace: newPacer(cfg.samplePeriod())}, nil
}

// Read samples all configured pins once per round, SamplesPerRead rounds.
// Each Read is a complete acquisition loop, so there is no carry-over buffer.
func (d *PinDevice) Read() (*mat.Dense, error) {
	if d.isStopped() {
		return nil, acqErr("pin", "read", ErrStopped)
	}
	n := d.cfg.SamplesPerRead
	block := newBlock(len(d.cfg.Channels), n)
	for s := 0; s < n; s++ {
		d.pace.wait()
		for i, pin := range d.cfg.Channels {
			v, err := d.backend.ReadPin(pin)
			if err != nil {
				return nil, acqErr("pin", "read", err)
			}
			block.Set(i, s, v)
		}
	}
	return block, nil
}

// Stop closes the board connection. Calling it again is a no-op.
func (d *PinDevice) Stop() error {
	if !d.markStopped() {
		return nil
	}
	if err := d.backend.Close(); err != nil {
		return acqErr("pin", "stop", err)
	}
	return nil
}

// pacer keeps a software-timed loop on schedule. Each wait sleeps until the
// next tick of the period grid. The grid persists across Read calls, so
// consecutive calls return at a constant frequency as long as the caller
// keeps up; when the caller falls behind, the grid is reset to now instead of
// sprinting to catch up.
type pacer struct {
	period time.Duration
	next   time.Time
}

func newPacer(period time.Duration) *pacer {
	return &pacer{period: period}
}

func (p *pacer) wait() {
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	p.next = p.next.Add(p.period)
	if wait := p.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	} else {
		p.next = now
	}
}
