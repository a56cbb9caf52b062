// Daqsim generates artificial hardware data so the godaq adapters can be
// exercised without lab equipment. It can fill the neural shared-memory ring
// buffer, publish armband events on a ZMQ socket, and stream float32 frames
// over UDP, all at once if asked.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/intellsensing/godaq/ringbuffer"
)

type simOptions struct {
	nchan    int
	rate     float64
	ringName string
	ringDesc string
	hubBind  string
	udpAddr  string
	doRing   bool
	doHub    bool
	doUDP    bool
}

var opt simOptions

// fillRing creates the shm ring buffer and writes sine frames into it until
// cancel fires. Frames are int16 counts, one per channel, interleaved.
func fillRing(cancel <-chan struct{}) error {
	ring, err := ringbuffer.NewBuffer(opt.ringName, opt.ringDesc)
	if err != nil {
		return fmt.Errorf("could not create ringbuffer: %v", err)
	}
	ring.Unlink()       // in case it exists from before
	defer ring.Unlink() // so it won't exist after
	frameBytes := 2 * opt.nchan
	const retainedFrames = 16384
	if err = ring.Create(retainedFrames * frameBytes); err != nil {
		return fmt.Errorf("failed ringbuffer.Create: %v", err)
	}
	fmt.Printf("Generating %d-channel data in shm:%s\n", opt.nchan, opt.ringName)

	const burst = 250 // frames written per timer tick
	period := time.Duration(float64(time.Second) * burst / opt.rate)
	buf := make([]byte, burst*frameBytes)
	phase := 0
	timer := time.NewTicker(period)
	defer timer.Stop()
	for {
		select {
		case <-cancel:
			return nil
		case <-timer.C:
			for f := 0; f < burst; f++ {
				for ch := 0; ch < opt.nchan; ch++ {
					arg := 2 * math.Pi * float64(phase+f) / 1000 * float64(ch+1)
					v := int16(8000 * math.Sin(arg))
					binary.LittleEndian.PutUint16(buf[(f*opt.nchan+ch)*2:], uint16(v))
				}
			}
			phase += burst
			if _, err := ring.Write(buf); err != nil {
				return err
			}
		}
	}
}

// publishHub binds a PUB socket and publishes one event per channel per tick,
// in the two-frame format the armband hub binding expects.
func publishHub(cancel <-chan struct{}) error {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pub.Close()
	if err = pub.Bind(opt.hubBind); err != nil {
		return fmt.Errorf("could not bind PUB socket to %s: %v", opt.hubBind, err)
	}
	fmt.Printf("Publishing %d-channel armband events on %s\n", opt.nchan, opt.hubBind)

	const eventSamples = 20
	period := time.Duration(float64(time.Second) * eventSamples / opt.rate)
	payload := make([]byte, 4*eventSamples)
	phase := 0
	timer := time.NewTicker(period)
	defer timer.Stop()
	for {
		select {
		case <-cancel:
			return nil
		case <-timer.C:
			for ch := 0; ch < opt.nchan; ch++ {
				for s := 0; s < eventSamples; s++ {
					arg := 2 * math.Pi * float64(phase+s) / 500 * float64(ch+1)
					bits := math.Float32bits(float32(math.Sin(arg)))
					binary.LittleEndian.PutUint32(payload[4*s:], bits)
				}
				if _, err := pub.SendMessage(fmt.Sprintf("%d", ch), payload); err != nil {
					return err
				}
			}
			phase += eventSamples
		}
	}
}

// streamUDP sends little-endian float32 frames to the given address.
func streamUDP(cancel <-chan struct{}) error {
	raddr, err := net.ResolveUDPAddr("udp", opt.udpAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Printf("Streaming %d-channel float32 frames to %s\n", opt.nchan, opt.udpAddr)

	const framesPerPacket = 50
	period := time.Duration(float64(time.Second) * framesPerPacket / opt.rate)
	packet := make([]byte, 4*framesPerPacket*opt.nchan)
	phase := 0
	timer := time.NewTicker(period)
	defer timer.Stop()
	for {
		select {
		case <-cancel:
			return nil
		case <-timer.C:
			for f := 0; f < framesPerPacket; f++ {
				for ch := 0; ch < opt.nchan; ch++ {
					arg := 2 * math.Pi * float64(phase+f) / 200 * float64(ch+1)
					bits := math.Float32bits(float32(math.Sin(arg)))
					binary.LittleEndian.PutUint32(packet[(f*opt.nchan+ch)*4:], bits)
				}
			}
			phase += framesPerPacket
			if _, err := conn.Write(packet); err != nil {
				return err
			}
		}
	}
}

func main() {
	flag.IntVar(&opt.nchan, "nchan", 8, "number of channels to generate")
	flag.Float64Var(&opt.rate, "rate", 2000, "samples per channel per second")
	flag.StringVar(&opt.ringName, "ringname", "neuro_buffer", "shm name of the ring buffer data region")
	flag.StringVar(&opt.ringDesc, "ringdesc", "neuro_description", "shm name of the ring buffer descriptor")
	flag.StringVar(&opt.hubBind, "hub", "tcp://*:6110", "bind address for the armband event publisher")
	flag.StringVar(&opt.udpAddr, "udp", "127.0.0.1:9220", "destination for the UDP frame stream")
	flag.BoolVar(&opt.doRing, "ring", false, "fill the shared-memory ring buffer")
	flag.BoolVar(&opt.doHub, "armband", false, "publish armband events over ZMQ")
	flag.BoolVar(&opt.doUDP, "stream", false, "stream frames over UDP")
	flag.Usage = func() {
		fmt.Println("DAQSIM generates artificial data for bench-testing the godaq adapters.")
		fmt.Println("Usage:")
		flag.PrintDefaults()
		fmt.Println("If none of -ring, -armband, or -stream is given, -ring is assumed.")
	}
	flag.Parse()
	if !opt.doRing && !opt.doHub && !opt.doUDP {
		opt.doRing = true
	}

	// One SIGINT fans out to every generator through the cancel channel.
	interruptCatcher := make(chan os.Signal, 1)
	signal.Notify(interruptCatcher, os.Interrupt)
	cancel := make(chan struct{})
	go func() {
		<-interruptCatcher
		close(cancel)
	}()

	errch := make(chan error)
	run := func(f func(<-chan struct{}) error) {
		go func() { errch <- f(cancel) }()
	}
	nrun := 0
	if opt.doRing {
		run(fillRing)
		nrun++
	}
	if opt.doHub {
		run(publishHub)
		nrun++
	}
	if opt.doUDP {
		run(streamUDP)
		nrun++
	}
	for i := 0; i < nrun; i++ {
		if err := <-errch; err != nil {
			fmt.Fprintf(os.Stderr, "daqsim: %v\n", err)
			os.Exit(1)
		}
	}
}
