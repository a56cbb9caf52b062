package godaq

import (
	"encoding/binary"
	"math"
	"net"
	"strconv"

	sysctl "github.com/lorenzosaino/go-sysctl"

	"gonum.org/v1/gonum/mat"
)

// Precision selects the wire format of a socket stream.
type Precision int

// The two floating-point wire formats a streamer may publish.
const (
	Single Precision = iota // little-endian float32
	Double                  // little-endian float64
)

func (p Precision) bytes() int {
	if p == Double {
		return 8
	}
	return 4
}

// SocketDevice reads fixed-shape frames of little-endian floats from a TCP or
// UDP socket. Companion streamers publish one frame per timestep, frameLen
// values interleaved; Read blocks until SamplesPerRead frames have arrived.
// Leftover bytes are kept between reads, so consecutive blocks are contiguous
// on a TCP stream.
type SocketDevice struct {
	cfg       Config
	network   string // "tcp" or "udp"
	conn      net.Conn
	frameLen  int
	precision Precision
	pending   []byte
	sessionState
}

// NewTCPSocketDevice connects to a streamer at addr publishing frames of
// frameLen values.
func NewTCPSocketDevice(addr string, cfg Config, frameLen int, precision Precision) (*SocketDevice, error) {
	if err := cfg.validate("socket"); err != nil {
		return nil, err
	}
	if err := cfg.checkChannelRange("socket", frameLen); err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, configErr("socket", "construct", err)
	}
	return &SocketDevice{cfg: cfg, network: "tcp", conn: conn,
		frameLen: frameLen, precision: precision}, nil
}

// NewUDPSocketDevice binds a listening UDP socket at addr and assembles
// frames from incoming datagrams.
func NewUDPSocketDevice(addr string, cfg Config, frameLen int, precision Precision) (*SocketDevice, error) {
	if err := cfg.validate("socket"); err != nil {
		return nil, err
	}
	if err := cfg.checkChannelRange("socket", frameLen); err != nil {
		return nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, configErr("socket", "construct", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, configErr("socket", "construct", err)
	}
	d := &SocketDevice{cfg: cfg, network: "udp", conn: conn,
		frameLen: frameLen, precision: precision}
	d.checkReceiveBuffer()
	return d, nil
}

// checkReceiveBuffer warns when the kernel's UDP receive buffer cap is small
// relative to the configured data rate, a common cause of dropped datagrams.
func (d *SocketDevice) checkReceiveBuffer() {
	value, err := sysctl.Get("net.core.rmem_max")
	if err != nil {
		return
	}
	rmemMax, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	bytesPerSecond := int(d.cfg.Rate) * d.frameLen * d.precision.bytes()
	if rmemMax < bytesPerSecond {
		ProblemLogger.Printf("net.core.rmem_max is %d bytes but the stream produces %d bytes/s; expect drops",
			rmemMax, bytesPerSecond)
	}
}

// Read blocks until a full block's worth of frames has arrived.
func (d *SocketDevice) Read() (*mat.Dense, error) {
	if d.isStopped() {
		return nil, acqErr("socket", "read", ErrStopped)
	}
	nsamp := d.cfg.SamplesPerRead
	need := nsamp * d.frameLen * d.precision.bytes()
	for len(d.pending) < need {
		buf := make([]byte, 65536)
		n, err := d.conn.Read(buf)
		if err != nil {
			return nil, acqErr("socket", "read", err)
		}
		d.pending = append(d.pending, buf[:n]...)
	}

	payload := d.pending[:need]
	rest := make([]byte, len(d.pending)-need)
	copy(rest, d.pending[need:])
	d.pending = rest

	block := newBlock(len(d.cfg.Channels), nsamp)
	width := d.precision.bytes()
	for s := 0; s < nsamp; s++ {
		base := s * d.frameLen * width
		for i, ch := range d.cfg.Channels {
			off := base + ch*width
			var v float64
			if d.precision == Double {
				v = math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))
			} else {
				v = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off:])))
			}
			block.Set(i, s, v)
		}
	}
	return block, nil
}

// Stop closes the socket. Calling it again is a no-op.
func (d *SocketDevice) Stop() error {
	if !d.markStopped() {
		return nil
	}
	if err := d.conn.Close(); err != nil {
		return acqErr("socket", "stop", err)
	}
	return nil
}
