// Package sse assembles complete lines from a streaming HTTP response body
// per PROTOCOL.md. The backend interleaves SSE-prefixed and bare NDJSON
// lines on the same stream; this package only restores line boundaries,
// classification happens in package wire.
package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Line size constants.
const (
	// MaxLineSize is the maximum accumulated size of a single line.
	// Result frames carry full playbook texts, so the cap is generous.
	MaxLineSize = 1 * 1024 * 1024
	// readChunkSize is the transfer buffer size for a single read.
	readChunkSize = 32 * 1024
)

// ScanErrorKind classifies line scanning errors.
type ScanErrorKind int

const (
	// ScanErrorRead indicates the underlying stream read failed.
	ScanErrorRead ScanErrorKind = iota
	// ScanErrorLineTooLong indicates a line exceeding MaxLineSize.
	ScanErrorLineTooLong
)

// ScanError represents a line scanning error. All scan errors are fatal to
// the stream; there is no way to resynchronize a byte stream with a lost
// line boundary.
type ScanError struct {
	Kind ScanErrorKind
	Msg  string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsScanError returns the ScanError if err is one.
func IsScanError(err error) (*ScanError, bool) {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr, true
	}
	return nil, false
}

// LineScanner yields complete newline-terminated lines from a stream,
// preserving a trailing partial line across reads. One scanner per response
// body; it is not restartable.
type LineScanner struct {
	reader io.Reader
	buf    []byte
	chunk  []byte
	eof    bool
}

// NewLineScanner creates a scanner over r, typically an http.Response.Body.
func NewLineScanner(r io.Reader) *LineScanner {
	return &LineScanner{
		reader: r,
		chunk:  make([]byte, readChunkSize),
	}
}

// ReadLine returns the next complete line without its trailing newline.
// Carriage returns are preserved; trimming is the parser's concern.
//
// Errors:
//   - io.EOF: stream ended cleanly (any final unterminated line has
//     already been flushed as a line)
//   - *ScanError with Kind=ScanErrorRead: the stream read failed; the
//     buffered partial line is discarded, never guessed complete
//   - *ScanError with Kind=ScanErrorLineTooLong: line exceeds MaxLineSize
func (s *LineScanner) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := string(s.buf[:i])
			s.buf = s.buf[i+1:]
			return line, nil
		}

		if s.eof {
			if len(s.buf) > 0 {
				line := string(s.buf)
				s.buf = nil
				return line, nil
			}
			return "", io.EOF
		}

		if len(s.buf) > MaxLineSize {
			s.buf = nil
			return "", &ScanError{
				Kind: ScanErrorLineTooLong,
				Msg:  fmt.Sprintf("line exceeds maximum size %d", MaxLineSize),
			}
		}

		n, err := s.reader.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				s.eof = true
				continue
			}
			s.buf = nil
			return "", &ScanError{
				Kind: ScanErrorRead,
				Msg:  "failed to read from stream",
				Err:  err,
			}
		}
	}
}
