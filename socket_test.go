package godaq

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"
)

// serveFrames accepts one connection and streams float32 frames of frameLen
// values, frame f carrying value 1000*ch + f on each channel. Chunks are sized
// to land mid-frame, exercising the carry-over path.
func serveFrames(t *testing.T, listener net.Listener, frameLen, nframes int) {
	t.Helper()
	conn, err := listener.Accept()
	if err != nil {
		t.Errorf("Accept failed: %v", err)
		return
	}
	defer conn.Close()

	raw := make([]byte, 0, nframes*frameLen*4)
	for f := 0; f < nframes; f++ {
		for ch := 0; ch < frameLen; ch++ {
			raw = binary.LittleEndian.AppendUint32(raw,
				math.Float32bits(float32(1000*ch+f)))
		}
	}
	const chunk = 13 // deliberately not a multiple of the frame size
	for len(raw) > 0 {
		n := chunk
		if n > len(raw) {
			n = len(raw)
		}
		if _, err := conn.Write(raw[:n]); err != nil {
			return // reader went away; expected when the test stops early
		}
		raw = raw[n:]
	}
	time.Sleep(100 * time.Millisecond) // let the reader drain before close
}

func TestTCPSocketDevice(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	const frameLen = 4
	go serveFrames(t, listener, frameLen, 120)

	cfg := Config{Channels: []int{3, 1}, Rate: 1000, SamplesPerRead: 40}
	dev, err := NewTCPSocketDevice(listener.Addr().String(), cfg, frameLen, Single)
	if err != nil {
		t.Fatalf("NewTCPSocketDevice: %v", err)
	}
	defer dev.Stop()

	for call := 0; call < 3; call++ {
		block, err := dev.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", call, err)
		}
		nchan, nsamp := block.Dims()
		if nchan != 2 || nsamp != 40 {
			t.Fatalf("Read %d shape = (%d, %d), want (2, 40)", call, nchan, nsamp)
		}
		for s := 0; s < nsamp; s++ {
			frame := float64(call*40 + s)
			if got := block.At(0, s); got != 3000+frame {
				t.Fatalf("call %d block[0][%d] = %g, want %g", call, s, got, 3000+frame)
			}
			if got := block.At(1, s); got != 1000+frame {
				t.Fatalf("call %d block[1][%d] = %g, want %g", call, s, got, 1000+frame)
			}
		}
	}
}

func TestUDPSocketDevice(t *testing.T) {
	cfg := Config{Channels: []int{0, 1}, Rate: 1000, SamplesPerRead: 10}
	const frameLen = 2
	dev, err := NewUDPSocketDevice("127.0.0.1:0", cfg, frameLen, Double)
	if err != nil {
		t.Fatalf("NewUDPSocketDevice: %v", err)
	}
	defer dev.Stop()

	addr := dev.conn.LocalAddr().String()
	sender, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sender.Close()

	// Send 10 frames, 5 per datagram.
	for pkt := 0; pkt < 2; pkt++ {
		var raw []byte
		for f := pkt * 5; f < (pkt+1)*5; f++ {
			for ch := 0; ch < frameLen; ch++ {
				raw = binary.LittleEndian.AppendUint64(raw,
					math.Float64bits(float64(10*ch+f)))
			}
		}
		if _, err := sender.Write(raw); err != nil {
			t.Fatalf("datagram write: %v", err)
		}
	}

	block, err := dev.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	nchan, nsamp := block.Dims()
	if nchan != 2 || nsamp != 10 {
		t.Fatalf("Read shape = (%d, %d), want (2, 10)", nchan, nsamp)
	}
	for s := 0; s < 10; s++ {
		if got := block.At(0, s); got != float64(s) {
			t.Errorf("block[0][%d] = %g, want %d", s, got, s)
		}
		if got := block.At(1, s); got != float64(10+s) {
			t.Errorf("block[1][%d] = %g, want %d", s, got, 10+s)
		}
	}
}

func TestSocketDeviceStopUnblocksRead(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(2 * time.Second) // never send anything
		}
	}()

	cfg := Config{Channels: []int{0}, Rate: 1000, SamplesPerRead: 10}
	dev, err := NewTCPSocketDevice(listener.Addr().String(), cfg, 1, Single)
	if err != nil {
		t.Fatalf("NewTCPSocketDevice: %v", err)
	}

	errch := make(chan error, 1)
	go func() {
		_, err := dev.Read()
		errch <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := dev.Stop(); err != nil {
		t.Errorf("Stop returned %v", err)
	}

	select {
	case err := <-errch:
		if !IsAcquisition(err) {
			t.Errorf("blocked Read returned %v after Stop, want AcquisitionError", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Read still blocked after Stop")
	}

	if _, err := dev.Read(); !IsAcquisition(err) {
		t.Errorf("Read after Stop returned %v, want AcquisitionError", err)
	}
}

func TestSocketDeviceChannelValidation(t *testing.T) {
	cfg := Config{Channels: []int{0, 4}, Rate: 1000, SamplesPerRead: 10}
	if _, err := NewUDPSocketDevice("127.0.0.1:0", cfg, 4, Single); !IsConfiguration(err) {
		t.Errorf("frameLen 4 with channel 4 returned %v, want ConfigurationError", err)
	}
}

func TestPrecisionBytes(t *testing.T) {
	if Single.bytes() != 4 || Double.bytes() != 8 {
		t.Errorf("Precision widths = (%d, %d), want (4, 8)", Single.bytes(), Double.bytes())
	}
}
