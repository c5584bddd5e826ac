// Package mapfile loads firmware images into memory, read-only, preferring
// mmap and falling back to ReadAt where mapping is unavailable.
package mapfile

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrTooLarge is returned for files that cannot be indexed as a []byte.
var ErrTooLarge = errors.New("mapfile: file too large")

// File is a loaded image. Data must not be written to.
type File struct {
	Data    []byte
	mmapped bool
}

// Open maps path read-only. Empty files yield empty Data.
// The returned file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := st.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrTooLarge
	}
	size := int(size64)
	if size == 0 {
		return &File{Data: []byte{}}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &File{Data: data, mmapped: true}, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &File{Data: data}, nil
}

// Load copies size bytes from r.
func Load(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrTooLarge
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return &File{Data: data}, nil
}

// Mapped reports whether Data is an mmap of the file.
func (f *File) Mapped() bool { return f != nil && f.mmapped }

// Close releases the mapping, if any. It is safe to call more than once.
func (f *File) Close() error {
	if f == nil || !f.mmapped || f.Data == nil {
		return nil
	}
	err := unix.Munmap(f.Data)
	f.Data = nil
	f.mmapped = false
	return err
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
