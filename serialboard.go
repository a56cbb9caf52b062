package godaq

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// adcFullScale is the largest raw value the board's 10-bit ADC reports.
const adcFullScale = 1023

// boardProbeTimeout is how long OpenSerialBoard waits for every requested pin
// to report at least once before declaring the board misconfigured.
const boardProbeTimeout = 2 * time.Second

// SerialBoard is a PinBackend for a microcontroller running the reporting
// firmware. Once reporting is enabled for a pin, the firmware streams lines
// of the form "A<pin> <raw>" at its own pace; a monitor goroutine keeps the
// most recent raw value per pin, and ReadPin returns that value scaled to
// [0, 1]. This mirrors how the firmware's host libraries behave: reads are
// snapshots of the latest report, not requests on the wire.
type SerialBoard struct {
	port io.ReadWriteCloser
	pins []int

	lock   sync.Mutex
	latest map[int]float64
	closed bool
}

// OpenSerialBoard opens the named serial port (e.g. "/dev/ttyACM0") at the
// given baud rate and enables reporting for the requested pins. It fails if
// the port cannot be opened or if any pin has not reported within the probe
// timeout, which usually means the wrong firmware is flashed.
func OpenSerialBoard(portName string, baudrate int, pins []int) (*SerialBoard, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %v", portName, err)
	}
	return NewSerialBoard(port, pins)
}

// NewSerialBoard wraps an already-open port. Split out from OpenSerialBoard
// so the protocol can be driven over any stream, including test pipes.
func NewSerialBoard(port io.ReadWriteCloser, pins []int) (*SerialBoard, error) {
	b := &SerialBoard{
		port:   port,
		pins:   append([]int(nil), pins...),
		latest: make(map[int]float64),
	}
	for _, pin := range pins {
		if _, err := fmt.Fprintf(port, "R%d\n", pin); err != nil {
			port.Close()
			return nil, fmt.Errorf("could not enable reporting for pin %d: %v", pin, err)
		}
	}
	go b.monitor()

	if err := b.waitForReports(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// monitor consumes report lines until the port is closed.
func (b *SerialBoard) monitor() {
	scan := bufio.NewScanner(b.port)
	for scan.Scan() {
		pin, value, err := parseReportLine(scan.Text())
		if err != nil {
			continue // boards emit banners and debug chatter; skip anything else
		}
		b.lock.Lock()
		b.latest[pin] = value
		b.lock.Unlock()
	}
}

// waitForReports blocks until every enabled pin has reported once.
func (b *SerialBoard) waitForReports() error {
	deadline := time.Now().Add(boardProbeTimeout)
	for {
		b.lock.Lock()
		missing := -1
		for _, pin := range b.pins {
			if _, ok := b.latest[pin]; !ok {
				missing = pin
				break
			}
		}
		b.lock.Unlock()
		if missing < 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pin %d never reported: is the reporting firmware flashed?", missing)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// parseReportLine decodes "A<pin> <raw>" into a pin number and a value
// scaled to [0, 1].
func parseReportLine(line string) (pin int, value float64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.HasPrefix(fields[0], "A") {
		return 0, 0, fmt.Errorf("not a report line: %q", line)
	}
	pin, err = strconv.Atoi(fields[0][1:])
	if err != nil {
		return 0, 0, fmt.Errorf("bad pin in report line %q", line)
	}
	raw, err := strconv.Atoi(fields[1])
	if err != nil || raw < 0 || raw > adcFullScale {
		return 0, 0, fmt.Errorf("bad raw value in report line %q", line)
	}
	return pin, float64(raw) / adcFullScale, nil
}

// Pins returns the pins reporting is enabled for.
func (b *SerialBoard) Pins() []int {
	return append([]int(nil), b.pins...)
}

// ReadPin returns the most recently reported value of pin.
func (b *SerialBoard) ReadPin(pin int) (float64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return 0, fmt.Errorf("serial port is closed")
	}
	v, ok := b.latest[pin]
	if !ok {
		return 0, fmt.Errorf("pin %d has never reported", pin)
	}
	return v, nil
}

// Close closes the serial port, which also unblocks the monitor goroutine.
func (b *SerialBoard) Close() error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return nil
	}
	b.closed = true
	b.lock.Unlock()
	return b.port.Close()
}
