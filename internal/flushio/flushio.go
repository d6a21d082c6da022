// Package flushio wraps writers so that buffered output can be pushed out
// before the VM blocks on a read.
package flushio

import (
	"bufio"
	"io"
)

// WriteFlusher is a flush-able io.Writer.
type WriteFlusher interface {
	io.Writer
	Flush() error
}

var discard WriteFlusher = nopFlusher{io.Discard}

// NewWriteFlusher adapts w: anything already a WriteFlusher is returned as
// is; writers that never need flushing (io.Discard, in memory buffers) pass
// through with a noop Flush; everything else gets a bufio.Writer.
func NewWriteFlusher(w io.Writer) WriteFlusher {
	if w == io.Discard {
		return discard
	}

	if wf, is := w.(WriteFlusher); is {
		return wf
	}

	// bytes.Buffer and strings.Builder shaped writers hold everything in
	// memory already
	type buffer interface {
		io.Writer
		Cap() int
		Len() int
		Grow(n int)
		Reset()
	}
	if _, isBuffer := w.(buffer); isBuffer {
		return nopFlusher{w}
	}

	return bufio.NewWriter(w)
}

type nopFlusher struct{ io.Writer }

func (nf nopFlusher) Flush() error { return nil }

// WriteFlushers fans writes and flushes out to every given WriteFlusher.
func WriteFlushers(wfs ...WriteFlusher) WriteFlusher {
	switch flat := appendFlat(nil, wfs...); len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return flat
	}
}

type multiFlusher []WriteFlusher

func (m multiFlusher) Write(p []byte) (n int, err error) {
	for _, wf := range m {
		n, err = wf.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (m multiFlusher) Flush() (err error) {
	for _, wf := range m {
		if ferr := wf.Flush(); err == nil {
			err = ferr
		}
	}
	return err
}

func appendFlat(all multiFlusher, some ...WriteFlusher) multiFlusher {
	for _, one := range some {
		if many, ok := one.(multiFlusher); ok {
			all = append(all, many...)
		} else if one != nil {
			all = append(all, one)
		}
	}
	return all
}
