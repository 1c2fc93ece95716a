// Package capture records raw response-stream lines for later replay.
//
// A capture file is a sequence of length-prefixed msgpack entries, one per
// stream line, in receipt order. Entries carry elapsed-time offsets so a
// replay can reproduce the original pacing.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry size constants.
const (
	// MaxEntrySize is the maximum entry size (16 MiB), including length prefix.
	MaxEntrySize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxEntrySize - 4 bytes).
	MaxPayloadSize = MaxEntrySize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Entry is one captured stream line.
type Entry struct {
	// Seq is the zero-based receipt index.
	Seq int64 `msgpack:"seq"`
	// ElapsedMs is milliseconds since the stream opened.
	ElapsedMs int64 `msgpack:"elapsed_ms"`
	// Line is the raw line as delivered by the scanner, without the newline.
	Line string `msgpack:"line"`
}

// Elapsed returns the entry offset as a Duration.
func (e *Entry) Elapsed() time.Duration {
	return time.Duration(e.ElapsedMs) * time.Millisecond
}

// EntryErrorKind classifies capture entry errors.
type EntryErrorKind int

const (
	// EntryErrorPartial indicates a truncated or incomplete entry.
	EntryErrorPartial EntryErrorKind = iota
	// EntryErrorTooLarge indicates an entry exceeding MaxEntrySize.
	EntryErrorTooLarge
	// EntryErrorDecode indicates a msgpack decoding error.
	EntryErrorDecode
)

// EntryError represents a capture entry error.
type EntryError struct {
	Kind EntryErrorKind
	Msg  string
	Err  error
}

func (e *EntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error means the capture file is unusable
// from this point on. Partial and oversized entries are fatal; a decode
// error is confined to one entry and the reader can continue.
func (e *EntryError) IsFatal() bool {
	return e.Kind == EntryErrorPartial || e.Kind == EntryErrorTooLarge
}

// IsFatalEntryError returns true if the error is a fatal entry error.
func IsFatalEntryError(err error) bool {
	var entryErr *EntryError
	if errors.As(err, &entryErr) {
		return entryErr.IsFatal()
	}
	return false
}

// Writer appends length-prefixed msgpack entries to a capture stream.
// Not safe for concurrent use; the session appends from a single goroutine.
type Writer struct {
	writer io.Writer
	seq    int64
}

// NewWriter creates a new capture writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: w}
}

// Append writes one line as the next entry.
// elapsed is the offset since the stream opened.
func (w *Writer) Append(line string, elapsed time.Duration) error {
	entry := Entry{
		Seq:       w.seq,
		ElapsedMs: elapsed.Milliseconds(),
		Line:      line,
	}

	payload, err := msgpack.Marshal(&entry)
	if err != nil {
		return &EntryError{
			Kind: EntryErrorDecode,
			Msg:  "failed to encode capture entry",
			Err:  err,
		}
	}
	if len(payload) > MaxPayloadSize {
		return &EntryError{
			Kind: EntryErrorTooLarge,
			Msg:  fmt.Sprintf("entry size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.writer.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	w.seq++
	return nil
}

// Count returns the number of entries written so far.
func (w *Writer) Count() int64 {
	return w.seq
}

// Reader decodes length-prefixed msgpack entries from a capture stream.
type Reader struct {
	reader io.Reader
}

// NewReader creates a new capture reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: r}
}

// Next reads a single entry from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more entries)
//   - *EntryError with Kind=EntryErrorPartial: incomplete entry (fatal)
//   - *EntryError with Kind=EntryErrorTooLarge: entry exceeds limit (fatal)
//   - *EntryError with Kind=EntryErrorDecode: bad payload (skippable)
func (r *Reader) Next() (*Entry, error) {
	// Read 4-byte big-endian length prefix
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(r.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// Partial read of length prefix
		return nil, &EntryError{
			Kind: EntryErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])

	if payloadSize > MaxPayloadSize {
		return nil, &EntryError{
			Kind: EntryErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.reader, payload); err != nil {
		return nil, &EntryError{
			Kind: EntryErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	var entry Entry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return nil, &EntryError{
			Kind: EntryErrorDecode,
			Msg:  "failed to decode capture entry",
			Err:  err,
		}
	}

	return &entry, nil
}

// ReadAll reads every entry from the stream. Decode errors skip the
// affected entry; fatal errors stop the read and are returned alongside
// the entries read so far.
func ReadAll(r io.Reader) ([]Entry, error) {
	reader := NewReader(r)
	var entries []Entry

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			if IsFatalEntryError(err) {
				return entries, err
			}
			continue
		}
		entries = append(entries, *entry)
	}
}
