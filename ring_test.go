package godaq

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// fakeRing simulates a backend overwriting a fixed-depth ring: it retains
// only the most recent `depth` frames. Frame f holds value 100*ch + f for
// channel ch, so reads can be checked for contiguity.
type fakeRing struct {
	nchan int
	depth uint64

	lock   sync.Mutex
	write  uint64
	closed bool
}

func (fr *fakeRing) NumChannels() int { return fr.nchan }

func (fr *fakeRing) advance(nframes int) {
	fr.lock.Lock()
	fr.write += uint64(nframes)
	fr.lock.Unlock()
}

func (fr *fakeRing) Cursors() (write, oldest uint64, err error) {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	if fr.closed {
		return 0, 0, fmt.Errorf("connection closed")
	}
	write = fr.write
	if write > fr.depth {
		oldest = write - fr.depth
	}
	return write, oldest, nil
}

func (fr *fakeRing) ReadAt(cursor uint64, nframes int) ([]float64, error) {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	if cursor+uint64(nframes) > fr.write {
		return nil, fmt.Errorf("read past write cursor")
	}
	out := make([]float64, nframes*fr.nchan)
	for f := 0; f < nframes; f++ {
		frame := cursor + uint64(f)
		for ch := 0; ch < fr.nchan; ch++ {
			out[f*fr.nchan+ch] = float64(100*ch) + float64(frame)
		}
	}
	return out, nil
}

func (fr *fakeRing) Close() error {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	fr.closed = true
	return nil
}

func TestRingDeviceContiguity(t *testing.T) {
	fr := &fakeRing{nchan: 3, depth: 1000}
	fr.advance(50) // data before construction must not be returned
	cfg := Config{Channels: []int{1, 2}, Rate: 1000, SamplesPerRead: 20}
	dev, err := NewRingDevice(cfg, fr)
	if err != nil {
		t.Fatalf("NewRingDevice: %v", err)
	}
	defer dev.Stop()

	go func() {
		for i := 0; i < 10; i++ {
			time.Sleep(2 * time.Millisecond)
			fr.advance(10)
		}
	}()

	for call := 0; call < 4; call++ {
		block, err := dev.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", call, err)
		}
		nchan, nsamp := block.Dims()
		if nchan != 2 || nsamp != 20 {
			t.Fatalf("Read %d shape = (%d, %d), want (2, 20)", call, nchan, nsamp)
		}
		for s := 0; s < 20; s++ {
			frame := float64(50 + call*20 + s)
			if got := block.At(0, s); got != 100+frame {
				t.Fatalf("call %d sample %d: %s", call, s,
					spew.Sprintf("got %v, want %v (gap or duplicate)", got, 100+frame))
			}
			if got := block.At(1, s); got != 200+frame {
				t.Errorf("call %d block[1][%d] = %g, want %g", call, s, got, 200+frame)
			}
		}
	}
}

// TestRingDeviceOverrun stalls the consumer past the retention window and
// verifies the loss is surfaced as an error, not as stale data.
func TestRingDeviceOverrun(t *testing.T) {
	fr := &fakeRing{nchan: 1, depth: 100}
	cfg := Config{Channels: []int{0}, Rate: 1000, SamplesPerRead: 10}
	dev, err := NewRingDevice(cfg, fr)
	if err != nil {
		t.Fatalf("NewRingDevice: %v", err)
	}
	defer dev.Stop()

	// The backend laps the reader's cursor: 150 frames arrive while the ring
	// retains only the last 100.
	fr.advance(150)

	if _, err := dev.Read(); !IsAcquisition(err) {
		t.Errorf("overrun Read returned %v, want AcquisitionError", err)
	}
}

func TestRingDeviceStop(t *testing.T) {
	fr := &fakeRing{nchan: 2, depth: 1000}
	cfg := Config{Channels: []int{0, 1}, Rate: 1000, SamplesPerRead: 10}
	dev, err := NewRingDevice(cfg, fr)
	if err != nil {
		t.Fatalf("NewRingDevice: %v", err)
	}
	if err = dev.Stop(); err != nil {
		t.Errorf("Stop returned %v", err)
	}
	if err = dev.Stop(); err != nil {
		t.Errorf("second Stop returned %v, want nil", err)
	}
	if !fr.closed {
		t.Errorf("Stop did not close the backend")
	}
	if _, err = dev.Read(); !IsAcquisition(err) {
		t.Errorf("Read after Stop returned %v, want AcquisitionError", err)
	}
}

// TestRingDeviceStopUnblocksPoll verifies that a Read polling for data
// notices Stop instead of spinning forever.
func TestRingDeviceStopUnblocksPoll(t *testing.T) {
	fr := &fakeRing{nchan: 1, depth: 1000}
	cfg := Config{Channels: []int{0}, Rate: 1000, SamplesPerRead: 10}
	dev, err := NewRingDevice(cfg, fr)
	if err != nil {
		t.Fatalf("NewRingDevice: %v", err)
	}

	errch := make(chan error, 1)
	go func() {
		_, err := dev.Read()
		errch <- err
	}()
	time.Sleep(10 * time.Millisecond)
	dev.Stop()

	select {
	case err := <-errch:
		if !IsAcquisition(err) {
			t.Errorf("polling Read returned %v after Stop, want AcquisitionError", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Read still polling after Stop")
	}
}
