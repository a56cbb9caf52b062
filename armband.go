package godaq

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// StreamEvent carries samples delivered asynchronously by a streaming backend
// for a single channel. A backend may deliver events for only a subset of
// channels in any interval; a gesture channel, for example, fires sparsely.
type StreamEvent struct {
	Channel int
	Samples []float64
}

// StreamBackend is the capability offered by push-style hardware such as the
// gesture armband: it delivers samples through a registered callback at its
// own native rate, with no way to request a fixed count.
type StreamBackend interface {
	// Channels returns the channel identifiers the backend can deliver.
	Channels() []int

	// Subscribe registers fn to be called for every incoming event. The
	// backend may invoke fn from its own goroutine at any time until
	// Unsubscribe returns.
	Subscribe(fn func(StreamEvent)) (uuid.UUID, error)

	// Unsubscribe removes a callback. After it returns, fn is not called again.
	Unsubscribe(id uuid.UUID) error

	// Close releases the backend connection.
	Close() error
}

// ArmbandDevice adapts a StreamBackend to the Device contract. Incoming
// events are appended to a per-channel accumulation buffer; Read blocks until
// every configured channel holds at least SamplesPerRead samples, consumes
// them oldest-first, and leaves any surplus in place for the next call. No
// sample is dropped or duplicated across successive reads.
//
// Read latency is bounded by the slowest configured channel: if one channel
// fires rarely, Read waits for it rather than returning padded data.
type ArmbandDevice struct {
	cfg     Config
	backend StreamBackend
	sub     uuid.UUID

	// lock guards everything below. The backend callback is the producer and
	// Read is the consumer; cond hands off between them.
	lock       sync.Mutex
	cond       *sync.Cond
	pending    map[int][]float64 // per-channel queues, oldest first
	maxPending int               // bound per channel; exceeding it is data loss
	overflowed bool
	stopped    bool
}

// armbandQueueBlocks bounds the accumulation buffer at this many full blocks
// per channel. A consumer polling at the nominal rate stays far below it.
const armbandQueueBlocks = 64

// NewArmbandDevice validates the configuration against the backend's channel
// set and registers the ingestion callback. The backend starts delivering
// immediately.
func NewArmbandDevice(cfg Config, backend StreamBackend) (*ArmbandDevice, error) {
	if err := cfg.validate("armband"); err != nil {
		return nil, err
	}
	available := make(map[int]bool)
	for _, ch := range backend.Channels() {
		available[ch] = true
	}
	for _, ch := range cfg.Channels {
		if !available[ch] {
			return nil, configErr("armband", "construct",
				fmt.Errorf("channel %d not exposed by backend (have %v)", ch, backend.Channels()))
		}
	}

	d := &ArmbandDevice{
		cfg:        cfg,
		backend:    backend,
		pending:    make(map[int][]float64, len(cfg.Channels)),
		maxPending: armbandQueueBlocks * cfg.SamplesPerRead,
	}
	d.cond = sync.NewCond(&d.lock)
	for _, ch := range cfg.Channels {
		d.pending[ch] = nil
	}

	sub, err := backend.Subscribe(d.deliver)
	if err != nil {
		return nil, configErr("armband", "construct", err)
	}
	d.sub = sub
	return d, nil
}

// deliver is the ingestion callback. It runs on the backend's goroutine.
func (d *ArmbandDevice) deliver(ev StreamEvent) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.stopped {
		return
	}
	q, configured := d.pending[ev.Channel]
	if !configured {
		return
	}
	if len(q)+len(ev.Samples) > d.maxPending {
		// The consumer has fallen too far behind. Dropping silently would
		// mask data loss, so remember the overflow and fail the next Read.
		d.overflowed = true
		d.cond.Broadcast()
		return
	}
	d.pending[ev.Channel] = append(q, ev.Samples...)
	d.cond.Broadcast()
}

// shortest returns the length of the shortest configured channel queue.
// Caller must hold d.lock.
func (d *ArmbandDevice) shortest() int {
	min := -1
	for _, ch := range d.cfg.Channels {
		if n := len(d.pending[ch]); min < 0 || n < min {
			min = n
		}
	}
	return min
}

// Read blocks until the accumulation buffer holds a full block for every
// configured channel.
func (d *ArmbandDevice) Read() (*mat.Dense, error) {
	n := d.cfg.SamplesPerRead
	d.lock.Lock()
	for !d.stopped && !d.overflowed && d.shortest() < n {
		d.cond.Wait()
	}
	if d.stopped {
		d.lock.Unlock()
		return nil, acqErr("armband", "read", ErrStopped)
	}
	if d.overflowed {
		d.lock.Unlock()
		return nil, acqErr("armband", "read",
			fmt.Errorf("accumulation buffer overflowed %d samples: consumer too slow", d.maxPending))
	}

	block := newBlock(len(d.cfg.Channels), n)
	for i, ch := range d.cfg.Channels {
		q := d.pending[ch]
		block.SetRow(i, q[:n])
		// Copy the surplus into a fresh slice so the consumed prefix can be
		// collected instead of pinning the old backing array.
		rest := make([]float64, len(q)-n)
		copy(rest, q[n:])
		d.pending[ch] = rest
	}
	d.lock.Unlock()
	return block, nil
}

// Stop unregisters the callback before releasing the buffer, so a callback
// in flight cannot fire into a freed buffer, then wakes any blocked Read.
func (d *ArmbandDevice) Stop() error {
	d.lock.Lock()
	if d.stopped {
		d.lock.Unlock()
		return nil
	}
	d.stopped = true
	d.lock.Unlock()

	err := d.backend.Unsubscribe(d.sub)
	cerr := d.backend.Close()

	d.lock.Lock()
	d.pending = nil
	d.cond.Broadcast()
	d.lock.Unlock()

	if err != nil {
		return acqErr("armband", "stop", err)
	}
	if cerr != nil {
		return acqErr("armband", "stop", cerr)
	}
	return nil
}
