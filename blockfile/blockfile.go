// Package blockfile stores acquired sample blocks in numpy's .npy format,
// the container the downstream analysis tooling reads. Blocks from one
// acquisition run are concatenated along the time axis into a single
// (nchan, total_samples) array.
package blockfile

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Writer accumulates blocks of a fixed channel count and writes them out as
// one .npy array on Close. Blocks are buffered in memory; acquisition runs
// short enough to dump to a single file fit comfortably.
type Writer struct {
	filename string
	nchan    int
	data     []float64 // channel-major, one row per channel, grown per block
	nsamples int
}

// NewWriter creates a writer for blocks of nchan channels.
func NewWriter(filename string, nchan int) (*Writer, error) {
	if nchan <= 0 {
		return nil, fmt.Errorf("block writer needs a positive channel count, have %d", nchan)
	}
	return &Writer{filename: filename, nchan: nchan}, nil
}

// Append adds one block. Its row count must match the writer's channel count.
func (w *Writer) Append(block *mat.Dense) error {
	nchan, nsamp := block.Dims()
	if nchan != w.nchan {
		return fmt.Errorf("block has %d rows, writer expects %d", nchan, w.nchan)
	}
	old := w.data
	oldSamples := w.nsamples
	w.nsamples += nsamp
	w.data = make([]float64, w.nchan*w.nsamples)
	for ch := 0; ch < w.nchan; ch++ {
		copy(w.data[ch*w.nsamples:], old[ch*oldSamples:(ch+1)*oldSamples])
		for s := 0; s < nsamp; s++ {
			w.data[ch*w.nsamples+oldSamples+s] = block.At(ch, s)
		}
	}
	return nil
}

// Samples returns how many samples per channel have been appended.
func (w *Writer) Samples() int { return w.nsamples }

// Close writes the accumulated (nchan, nsamples) array to the file.
func (w *Writer) Close() error {
	if w.nsamples == 0 {
		return fmt.Errorf("no blocks were appended, refusing to write an empty %s", w.filename)
	}
	f, err := os.Create(w.filename)
	if err != nil {
		return err
	}
	defer f.Close()
	m := mat.NewDense(w.nchan, w.nsamples, w.data)
	if err := npyio.Write(f, m); err != nil {
		return fmt.Errorf("could not write %s: %v", w.filename, err)
	}
	return nil
}
