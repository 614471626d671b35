package logstore

import (
	"bufio"
	"io"
	"os"
)

// readerBufferSize is the initial buffer for the line reader. Lines can
// exceed it (summary records carry full step maps); bufio.Reader grows
// as needed without loading the whole file.
const readerBufferSize = 64 * 1024

// LineIterator is a sequential, forward-only reader over one log file.
// It never loads the whole file into memory; callers consume it lazily
// and must Close it.
type LineIterator struct {
	f   *os.File
	r   *bufio.Reader
	err error
}

// OpenLines opens path for forward-only line iteration.
func OpenLines(path string) (*LineIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &LineIterator{
		f: f,
		r: bufio.NewReaderSize(f, readerBufferSize),
	}, nil
}

// Next returns the next line without its trailing newline. It returns
// io.EOF when the file is exhausted. A final unterminated line (a record
// being appended mid-scan, or truncated by a crash) is returned as-is;
// the caller decides whether it parses.
func (it *LineIterator) Next() ([]byte, error) {
	if it.err != nil {
		return nil, it.err
	}
	line, err := it.r.ReadBytes('\n')
	if err == io.EOF {
		it.err = io.EOF
		if len(line) > 0 {
			return line, nil
		}
		return nil, io.EOF
	}
	if err != nil {
		it.err = err
		return nil, err
	}
	return line[:len(line)-1], nil
}

// Close releases the underlying file.
func (it *LineIterator) Close() error {
	return it.f.Close()
}
