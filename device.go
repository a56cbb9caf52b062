package godaq

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Device is the interface for all acquisition adapters. A device is driven by
// a single consumer calling Read in a loop at (or faster than) the nominal
// block rate; the adapter assembles whatever its backend produces into a
// fixed-shape sample block.
type Device interface {
	// Read blocks until SamplesPerRead samples per channel are available,
	// then returns them as a (len(Channels), SamplesPerRead) matrix. Row i
	// holds Channels[i]; the newest sample is last along the time axis. The
	// shape is identical on every call for a given device.
	Read() (*mat.Dense, error)

	// Stop releases the backend session. It is idempotent; after the first
	// call, Read fails with an AcquisitionError wrapping ErrStopped.
	Stop() error
}

// Config holds the parameters common to every adapter. It is set at
// construction and never mutated afterward.
type Config struct {
	Channels       []int   // backend channel identifiers; order defines row order
	Rate           float64 // nominal sample rate in Hz
	SamplesPerRead int     // fixed block width
}

// samplePeriod returns the nominal time between consecutive samples.
func (c Config) samplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Rate)
}

// blockPeriod returns the nominal time covered by one full block.
func (c Config) blockPeriod() time.Duration {
	return time.Duration(float64(time.Second) * float64(c.SamplesPerRead) / c.Rate)
}

func (c Config) validate(device string) error {
	if len(c.Channels) == 0 {
		return configErr(device, "construct", fmt.Errorf("no channels configured"))
	}
	seen := make(map[int]bool)
	for _, ch := range c.Channels {
		if seen[ch] {
			return configErr(device, "construct", fmt.Errorf("channel %d listed twice", ch))
		}
		seen[ch] = true
	}
	if c.Rate <= 0 {
		return configErr(device, "construct", fmt.Errorf("rate is %g Hz, must be positive", c.Rate))
	}
	if c.SamplesPerRead <= 0 {
		return configErr(device, "construct", fmt.Errorf("samplesPerRead is %d, must be positive", c.SamplesPerRead))
	}
	return nil
}

// checkChannelRange verifies that every configured channel identifier is a
// valid index into a backend exposing nchan channels.
func (c Config) checkChannelRange(device string, nchan int) error {
	for _, ch := range c.Channels {
		if ch < 0 || ch >= nchan {
			return configErr(device, "construct",
				fmt.Errorf("channel %d out of range: backend exposes %d channels", ch, nchan))
		}
	}
	return nil
}

// newBlock allocates a zeroed sample block of shape (nchan, nsamp). A fresh
// block is allocated on each Read so the caller may hold onto the previous
// one; the shape never varies for a given device.
func newBlock(nchan, nsamp int) *mat.Dense {
	return mat.NewDense(nchan, nsamp, nil)
}

// sessionState tracks the stopped flag shared by the single-consumer
// adapters. The armband adapter keeps its own state because its stop path
// must also wake a Read blocked on the accumulation buffer.
type sessionState struct {
	stateLock sync.Mutex
	stopped   bool
}

// markStopped flips the session to stopped and reports whether this call was
// the first to do so. Stop is idempotent, so later calls see first == false.
func (s *sessionState) markStopped() (first bool) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	first = !s.stopped
	s.stopped = true
	return first
}

func (s *sessionState) isStopped() bool {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.stopped
}
