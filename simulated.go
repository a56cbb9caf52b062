package godaq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SimulatedDevice synthesizes triangle waves, one cycle per channel with a
// channel-dependent offset, paced by the wall clock at the nominal rate. It
// exists so consumers and tests can exercise the Device contract without
// hardware attached.
type SimulatedDevice struct {
	cfg      Config
	min, max float64
	onecycle []float64
	phase    int
	pace     *pacer
	sessionState
}

// NewSimulatedDevice creates a triangle-wave source spanning [min, max].
func NewSimulatedDevice(cfg Config, min, max float64) (*SimulatedDevice, error) {
	if err := cfg.validate("simulated"); err != nil {
		return nil, err
	}
	if min >= max {
		return nil, configErr("simulated", "construct",
			fmt.Errorf("min %g must be below max %g", min, max))
	}

	// One full cycle: rise over half the block, fall over the other half.
	cycleLen := 2 * cfg.SamplesPerRead
	onecycle := make([]float64, cycleLen)
	half := cycleLen / 2
	for i := 0; i < half; i++ {
		frac := float64(i) / float64(half)
		onecycle[i] = min + frac*(max-min)
		onecycle[i+half] = max - frac*(max-min)
	}
	return &SimulatedDevice{
		cfg:      cfg,
		min:      min,
		max:      max,
		onecycle: onecycle,
		pace:     newPacer(cfg.blockPeriod()),
	}, nil
}

// Read waits out the block period, then fills the next block of the wave.
func (d *SimulatedDevice) Read() (*mat.Dense, error) {
	if d.isStopped() {
		return nil, acqErr("simulated", "read", ErrStopped)
	}
	d.pace.wait()
	n := d.cfg.SamplesPerRead
	block := newBlock(len(d.cfg.Channels), n)
	cycleLen := len(d.onecycle)
	for s := 0; s < n; s++ {
		v := d.onecycle[(d.phase+s)%cycleLen]
		for i, ch := range d.cfg.Channels {
			block.Set(i, s, v+float64(ch))
		}
	}
	d.phase = (d.phase + n) % cycleLen
	return block, nil
}

// Stop ends the simulated session. Calling it again is a no-op.
func (d *SimulatedDevice) Stop() error {
	d.markStopped()
	return nil
}
