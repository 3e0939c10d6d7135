package main

import (
	"bufio"
	"io"
)

type flusher interface {
	Flush() error
}

// flushingReader flushes pending program output before every read, so an
// interactive program's prompt is visible before it waits for input
type flushingReader struct {
	r *bufio.Reader
	w flusher
}

func newFlushingReader(r io.Reader, w flusher) *flushingReader {
	return &flushingReader{r: bufio.NewReader(r), w: w}
}

func (f *flushingReader) ReadByte() (byte, error) {
	if f.w != nil {
		if err := f.w.Flush(); err != nil {
			return 0, err
		}
	}
	return f.r.ReadByte()
}
