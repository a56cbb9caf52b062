package blockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

func TestWriter(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "run.npy")
	w, err := NewWriter(filename, 2)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	// Two blocks of 3 samples; channel 0 counts up, channel 1 counts down.
	b1 := mat.NewDense(2, 3, []float64{0, 1, 2, 100, 99, 98})
	b2 := mat.NewDense(2, 3, []float64{3, 4, 5, 97, 96, 95})
	if err = w.Append(b1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err = w.Append(b2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if w.Samples() != 6 {
		t.Errorf("Samples = %d, want 6", w.Samples())
	}

	// A block with the wrong channel count must be refused.
	if err = w.Append(mat.NewDense(3, 2, make([]float64, 6))); err == nil {
		t.Errorf("Append accepted a 3-channel block on a 2-channel writer")
	}

	if err = w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	var m mat.Dense
	if err = npyio.Read(f, &m); err != nil {
		t.Fatalf("npyio.Read: %v", err)
	}
	nchan, nsamp := m.Dims()
	if nchan != 2 || nsamp != 6 {
		t.Fatalf("stored array is (%d, %d), want (2, 6)", nchan, nsamp)
	}
	want := [][]float64{
		{0, 1, 2, 3, 4, 5},
		{100, 99, 98, 97, 96, 95},
	}
	for ch := range want {
		for s, v := range want[ch] {
			if got := m.At(ch, s); got != v {
				t.Errorf("stored[%d][%d] = %g, want %g", ch, s, got, v)
			}
		}
	}
}

func TestWriterEmpty(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "empty.npy")
	w, err := NewWriter(filename, 4)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err = w.Close(); err == nil {
		t.Errorf("Close with no blocks succeeded, want error")
	}
	if _, err = os.Stat(filename); !os.IsNotExist(err) {
		t.Errorf("empty writer left a file behind")
	}
}

func TestWriterValidation(t *testing.T) {
	if _, err := NewWriter("x.npy", 0); err == nil {
		t.Errorf("NewWriter accepted zero channels")
	}
}
