package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

// encodeRaw encodes a payload with length prefix (matches Writer output).
func encodeRaw(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestWriter_Reader_RoundTrip(t *testing.T) {
	lines := []string{
		`data: {"type":"progress","data":{"step":1,"agent_action":"lint","summary":"Linting"}}`,
		``,
		`data: [DONE]`,
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i, line := range lines {
		if err := w.Append(line, time.Duration(i*250)*time.Millisecond); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("Count = %d, want 3", w.Count())
	}

	r := NewReader(&buf)
	for i, want := range lines {
		entry, err := r.Next()
		if err != nil {
			t.Fatalf("Next(%d) failed: %v", i, err)
		}
		if entry.Seq != int64(i) {
			t.Errorf("entry %d: Seq = %d, want %d", i, entry.Seq, i)
		}
		if entry.Line != want {
			t.Errorf("entry %d: Line = %q, want %q", i, entry.Line, want)
		}
		if entry.ElapsedMs != int64(i*250) {
			t.Errorf("entry %d: ElapsedMs = %d, want %d", i, entry.ElapsedMs, i*250)
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last entry, got %v", err)
	}
}

func TestEntry_Elapsed(t *testing.T) {
	entry := Entry{ElapsedMs: 1500}
	if entry.Elapsed() != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 1.5s", entry.Elapsed())
	}
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReader_PartialLengthPrefix(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00, 0x01}))

	_, err := r.Next()
	var entryErr *EntryError
	if !errors.As(err, &entryErr) {
		t.Fatalf("expected *EntryError, got %T", err)
	}
	if entryErr.Kind != EntryErrorPartial {
		t.Errorf("Kind = %v, want EntryErrorPartial", entryErr.Kind)
	}
	if !IsFatalEntryError(err) {
		t.Error("partial entries should be fatal")
	}
}

func TestReader_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Append("data: [DONE]", 0); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Cut the stream mid-payload
	truncated := buf.Bytes()[:buf.Len()-3]

	r := NewReader(bytes.NewReader(truncated))
	_, err := r.Next()
	var entryErr *EntryError
	if !errors.As(err, &entryErr) {
		t.Fatalf("expected *EntryError, got %T", err)
	}
	if entryErr.Kind != EntryErrorPartial {
		t.Errorf("Kind = %v, want EntryErrorPartial", entryErr.Kind)
	}
}

func TestReader_OversizedEntry(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)

	r := NewReader(bytes.NewReader(prefix[:]))
	_, err := r.Next()
	var entryErr *EntryError
	if !errors.As(err, &entryErr) {
		t.Fatalf("expected *EntryError, got %T", err)
	}
	if entryErr.Kind != EntryErrorTooLarge {
		t.Errorf("Kind = %v, want EntryErrorTooLarge", entryErr.Kind)
	}
	if !IsFatalEntryError(err) {
		t.Error("oversized entries should be fatal")
	}
}

// Decode errors are non-fatal: the entry was read correctly, just couldn't
// decode, and the reader stays aligned for the next entry.
func TestReader_MalformedPayloadSkippable(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeRaw([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))

	w := NewWriter(&buf)
	if err := w.Append("data: [DONE]", time.Second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	r := NewReader(&buf)

	_, err := r.Next()
	var entryErr *EntryError
	if !errors.As(err, &entryErr) {
		t.Fatalf("expected *EntryError, got %T", err)
	}
	if entryErr.Kind != EntryErrorDecode {
		t.Errorf("Kind = %v, want EntryErrorDecode", entryErr.Kind)
	}
	if IsFatalEntryError(err) {
		t.Error("decode errors should not be fatal")
	}

	// Reader continues with the next entry
	entry, err := r.Next()
	if err != nil {
		t.Fatalf("Next after decode error failed: %v", err)
	}
	if entry.Line != "data: [DONE]" {
		t.Errorf("Line = %q, want %q", entry.Line, "data: [DONE]")
	}
}

func TestReadAll_SkipsDecodeErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Append("line one", 0); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	buf.Write(encodeRaw([]byte{0xFF, 0xFF, 0xFF}))
	if err := w.Append("line two", time.Second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Line != "line one" || entries[1].Line != "line two" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestReadAll_StopsOnFatal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Append("line one", 0); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	buf.Write([]byte{0x00, 0x01}) // truncated length prefix

	entries, err := ReadAll(&buf)
	if !IsFatalEntryError(err) {
		t.Fatalf("expected fatal entry error, got %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry before fatal error, got %d", len(entries))
	}
}

func TestIsFatalEntryError_NonEntryError(t *testing.T) {
	if IsFatalEntryError(errors.New("plain")) {
		t.Error("plain errors should not be fatal entry errors")
	}
	if IsFatalEntryError(nil) {
		t.Error("nil should not be a fatal entry error")
	}
}
