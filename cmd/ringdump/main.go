// ringdump inspects a shared-memory acquisition ring buffer: it prints the
// cursors, estimates the frame rate over a short window, and dumps a few
// frames of raw counts. Useful for checking that the acquisition service is
// actually writing before starting a capture.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/intellsensing/godaq/ringbuffer"
)

func dump(rawName, descName string, nchan, nframes int) error {
	reader, err := ringbuffer.OpenSnapshotReader(rawName, descName, nchan)
	if err != nil {
		return err
	}
	defer reader.Close()

	write1, oldest, err := reader.Cursors()
	if err != nil {
		return err
	}
	fmt.Printf("Ring shm:%s holds frames [%d, %d), %d frames retained.\n",
		rawName, oldest, write1, write1-oldest)

	const window = 500 * time.Millisecond
	time.Sleep(window)
	write2, _, err := reader.Cursors()
	if err != nil {
		return err
	}
	rate := float64(write2-write1) / window.Seconds()
	fmt.Printf("Writer advanced %d frames in %v: %.0f frames/s.\n",
		write2-write1, window, rate)
	if write2 == write1 {
		fmt.Println("The write cursor is not moving. Is the acquisition service running?")
		return nil
	}

	if uint64(nframes) > write2-oldest {
		nframes = int(write2 - oldest)
	}
	data, err := reader.ReadAt(write2-uint64(nframes), nframes)
	if err != nil {
		return err
	}
	fmt.Printf("Last %d frames (raw counts):\n", nframes)
	for f := 0; f < nframes; f++ {
		fmt.Printf("%8d:", write2-uint64(nframes)+uint64(f))
		for ch := 0; ch < nchan; ch++ {
			fmt.Printf(" %6.0f", data[f*nchan+ch])
		}
		fmt.Println()
	}
	return nil
}

func main() {
	rawName := flag.String("buffer", "neuro_buffer", "shm name of the raw sample region")
	descName := flag.String("desc", "neuro_description", "shm name of the descriptor region")
	nchan := flag.Int("nchan", 96, "channels per frame")
	nframes := flag.Int("frames", 8, "how many of the newest frames to dump")
	flag.Usage = func() {
		fmt.Println("ringdump, a program to inspect a shared-memory acquisition ring buffer")
		fmt.Println("Usage:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := dump(*rawName, *descName, *nchan, *nframes); err != nil {
		fmt.Fprintf(os.Stderr, "ringdump: %v\n", err)
		os.Exit(1)
	}
}
