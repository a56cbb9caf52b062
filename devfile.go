package godaq

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// deviceFileScale converts the 16-bit raw counts streamed by the DMA engine
// to volts, assuming a ±1 V full-scale range.
const deviceFileScale = 1.0 / 32768.0

// DeviceFile is a TaskBackend reading interleaved little-endian int16 frames
// from a DMA device-special file (/dev/xdma0_c2h_*). The driver blocks the
// read until the requested byte count has been produced, which gives the
// task adapter its blocking fixed-count semantics for free.
type DeviceFile struct {
	devnum int
	nchan  int
	file   *os.File
}

// OpenDeviceFile opens /dev/xdma0_c2h_<devnum> for a hardware task acquiring
// nchan channels. It fails if the device node is absent, which usually means
// the driver is not loaded.
func OpenDeviceFile(devnum, nchan int) (*DeviceFile, error) {
	if nchan <= 0 {
		return nil, fmt.Errorf("device file needs a positive channel count, have %d", nchan)
	}
	fname := fmt.Sprintf("/dev/xdma0_c2h_%d", devnum)
	file, err := os.OpenFile(fname, os.O_RDONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %v", fname, err)
	}
	return &DeviceFile{devnum: devnum, nchan: nchan, file: file}, nil
}

// NumChannels returns the channel count of the hardware task.
func (df *DeviceFile) NumChannels() int { return df.nchan }

// ReadFrames blocks until n frames are available, then returns them scaled
// to volts.
func (df *DeviceFile) ReadFrames(n int) ([]float64, error) {
	raw := make([]byte, 2*n*df.nchan)
	if _, err := io.ReadFull(df.file, raw); err != nil {
		return nil, fmt.Errorf("read of /dev/xdma0_c2h_%d failed: %v", df.devnum, err)
	}
	out := make([]float64, n*df.nchan)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		out[i] = float64(v) * deviceFileScale
	}
	return out, nil
}

// Close releases the device node.
func (df *DeviceFile) Close() error { return df.file.Close() }
