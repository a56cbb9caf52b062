// Package ringbuffer gives read access to the POSIX shared-memory ring
// buffer that the neural acquisition service fills continuously. The service
// owns the write side: it overwrites the oldest frames when the buffer is
// full, so a reader that falls behind loses data and must detect that from
// the cursors. Two shm regions make up one buffer: a small descriptor page
// holding the write pointer, and the raw sample region.
package ringbuffer

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/fabiokung/shm"
)

// descriptor is the layout of the shared descriptor page. The acquisition
// service updates writePointer after each burst of frames; everything else
// is fixed at creation.
type descriptor struct {
	writePointer uint64 // total bytes ever written, monotonically increasing
	bufferSize   uint64 // capacity of the raw region in bytes
}

const descriptorRegionSize = 4096

// Buffer is one shared-memory ring buffer, opened either as the writer (the
// acquisition service, data simulators, tests) or as a reader.
type Buffer struct {
	desc      *descriptor
	descBytes []byte
	raw       []byte
	rawName   string
	descName  string
	rawFile   *os.File
	descFile  *os.File
	writeable bool
}

// NewBuffer creates a Buffer object for the named shm regions. It does not
// touch the regions; call Create or Open next.
func NewBuffer(rawName, descName string) (*Buffer, error) {
	rb := new(Buffer)
	rb.rawName = rawName
	rb.descName = descName
	return rb, nil
}

// Create makes a writeable buffer with bufsize bytes of sample capacity.
// Only the acquisition service and test writers call this.
func (rb *Buffer) Create(bufsize int) (err error) {
	if bufsize <= 0 {
		return fmt.Errorf("buffer size %d must be positive", bufsize)
	}
	rb.writeable = true
	file, err := shm.Open(rb.descName, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		return err
	}
	rb.descFile = file
	fd := int(rb.descFile.Fd())
	if err = syscall.Ftruncate(fd, int64(descriptorRegionSize)); err != nil {
		return err
	}
	rb.descBytes, err = syscall.Mmap(fd, 0, descriptorRegionSize,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return err
	}
	rb.desc = (*descriptor)(unsafe.Pointer(&rb.descBytes[0]))
	rb.desc.bufferSize = uint64(bufsize)
	atomic.StoreUint64(&rb.desc.writePointer, 0)

	file, err = shm.Open(rb.rawName, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		return err
	}
	rb.rawFile = file
	fd = int(rb.rawFile.Fd())
	if err = syscall.Ftruncate(fd, int64(bufsize)); err != nil {
		return err
	}
	rb.raw, err = syscall.Mmap(fd, 0, bufsize,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	return err
}

// Unlink removes the shm regions from the system. Writer-side cleanup.
func (rb *Buffer) Unlink() error {
	if err := shm.Unlink(rb.rawName); err != nil {
		return err
	}
	return shm.Unlink(rb.descName)
}

// Open memory-maps an existing buffer read-only.
func (rb *Buffer) Open() (err error) {
	file, err := shm.Open(rb.descName, os.O_RDONLY, 0600)
	if err != nil {
		return err
	}
	rb.descFile = file
	fd := int(rb.descFile.Fd())
	rb.descBytes, err = syscall.Mmap(fd, 0, descriptorRegionSize,
		syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return err
	}
	rb.desc = (*descriptor)(unsafe.Pointer(&rb.descBytes[0]))
	size := int(rb.desc.bufferSize)
	if size <= 0 {
		rb.Close()
		return fmt.Errorf("shm:%s describes a buffer of size %d", rb.descName, size)
	}

	file, err = shm.Open(rb.rawName, os.O_RDONLY, 0600)
	if err != nil {
		rb.Close()
		return err
	}
	rb.rawFile = file
	fd = int(rb.rawFile.Fd())
	rb.raw, err = syscall.Mmap(fd, 0, size, syscall.PROT_READ, syscall.MAP_SHARED)
	return err
}

// Close unmaps and closes the shm regions. The regions themselves survive
// for other processes until the writer unlinks them.
func (rb *Buffer) Close() (err error) {
	rb.desc = nil
	if rb.raw != nil {
		if err = syscall.Munmap(rb.raw); err != nil {
			return
		}
		rb.raw = nil
	}
	if rb.descBytes != nil {
		if err = syscall.Munmap(rb.descBytes); err != nil {
			return
		}
		rb.descBytes = nil
	}
	if rb.rawFile != nil {
		if err = rb.rawFile.Close(); err != nil {
			return
		}
		rb.rawFile = nil
	}
	if rb.descFile != nil {
		if err = rb.descFile.Close(); err != nil {
			return
		}
		rb.descFile = nil
	}
	return nil
}

// Size returns the buffer's capacity in bytes, its retention window.
func (rb *Buffer) Size() (uint64, error) {
	if rb.desc == nil {
		return 0, fmt.Errorf("ring buffer shm:%s is not open", rb.rawName)
	}
	return rb.desc.bufferSize, nil
}

// WritePointer returns the total bytes ever written to the buffer.
func (rb *Buffer) WritePointer() (uint64, error) {
	if rb.desc == nil {
		return 0, fmt.Errorf("ring buffer shm:%s is not open", rb.rawName)
	}
	return atomic.LoadUint64(&rb.desc.writePointer), nil
}

// Write appends p, wrapping around and overwriting the oldest bytes when the
// end of the region is reached. Only writeable buffers may call it.
func (rb *Buffer) Write(p []byte) (int, error) {
	if !rb.writeable {
		return 0, fmt.Errorf("ring buffer shm:%s is not writeable", rb.rawName)
	}
	size := rb.desc.bufferSize
	if uint64(len(p)) > size {
		return 0, fmt.Errorf("write of %d bytes exceeds buffer size %d", len(p), size)
	}
	w := atomic.LoadUint64(&rb.desc.writePointer)
	pos := w % size
	n := copy(rb.raw[pos:], p)
	if n < len(p) {
		copy(rb.raw, p[n:])
	}
	atomic.StoreUint64(&rb.desc.writePointer, w+uint64(len(p)))
	return len(p), nil
}

// ReadAt copies len(p) bytes that were written starting at absolute position
// pos. It fails if the range extends past the write pointer or has already
// been overwritten. Note the no-overwrite guarantee only holds if the writer
// stays at least len(p) bytes behind a full lap; callers must re-check the
// cursors afterward to detect a race.
func (rb *Buffer) ReadAt(pos uint64, p []byte) error {
	if rb.desc == nil {
		return fmt.Errorf("ring buffer shm:%s is not open", rb.rawName)
	}
	size := rb.desc.bufferSize
	w := atomic.LoadUint64(&rb.desc.writePointer)
	if pos+uint64(len(p)) > w {
		return fmt.Errorf("read of [%d, %d) is past the write pointer %d", pos, pos+uint64(len(p)), w)
	}
	oldest := uint64(0)
	if w > size {
		oldest = w - size
	}
	if pos < oldest {
		return fmt.Errorf("read at %d was overwritten: oldest retained byte is %d", pos, oldest)
	}
	start := pos % size
	n := copy(p, rb.raw[start:])
	if n < len(p) {
		copy(p[n:], rb.raw)
	}
	return nil
}
