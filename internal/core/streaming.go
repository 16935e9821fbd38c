package core

// streaming.go provides the readers that sit between an uploaded file and the
// CSV tokenizer:
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel
//   - UTF8Validator: Fails the stream with ErrInvalidEncoding on malformed UTF-8
//
// Use WrapForParsing to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned when the input is not valid UTF-8.
var ErrInvalidEncoding = errors.New("encoding error: file is not valid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and drops a leading UTF-8 BOM.
type BOMSkippingReader struct {
	reader  *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: bufio.NewReader(r)}
}

// Read implements io.Reader. The BOM check happens on the first call only.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, err := r.reader.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = r.reader.Discard(len(utf8BOM))
		}
	}
	return r.reader.Read(p)
}

// UTF8Validator wraps an io.Reader and stops with ErrInvalidEncoding at the
// first malformed UTF-8 sequence. Bytes before the bad sequence are delivered
// normally so a consumer keeps whatever it parsed before the fault.
//
// Multi-byte sequences split across reads are carried over to the next fill.
type UTF8Validator struct {
	reader io.Reader
	buf    []byte
	start  int   // Next validated byte to hand out
	end    int   // End of validated bytes in buf
	carry  int   // Incomplete sequence held after end
	offset int64 // Bytes validated so far
	err    error // Returned once validated bytes are drained
}

// validatorBufferSize is the internal read size of UTF8Validator.
const validatorBufferSize = 4096

// maxEmptyReads bounds consecutive reads that return no data and no error.
const maxEmptyReads = 100

// NewUTF8Validator creates a new streaming UTF-8 validator.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{
		reader: r,
		buf:    make([]byte, validatorBufferSize),
	}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for empty := 0; v.start == v.end; empty++ {
		if v.err != nil {
			return 0, v.err
		}
		if empty == maxEmptyReads {
			return 0, io.ErrNoProgress
		}
		v.fill()
	}

	n := copy(p, v.buf[v.start:v.end])
	v.start += n
	return n, nil
}

// fill reads the next chunk and validates it.
func (v *UTF8Validator) fill() {
	copy(v.buf, v.buf[v.end:v.end+v.carry])
	v.start, v.end = 0, 0

	m, err := v.reader.Read(v.buf[v.carry:])
	data := v.buf[:v.carry+m]

	valid := len(data)
	if err != io.EOF {
		// Hold back a sequence that may be completed by the next read
		valid -= incompleteTrailingBytes(data)
	}

	if i := invalidIndex(data[:valid]); i >= 0 {
		v.end = i
		v.carry = 0
		v.err = fmt.Errorf("%w (byte offset %d)", ErrInvalidEncoding, v.offset+int64(i))
		v.offset += int64(i)
		return
	}

	v.end = valid
	v.carry = len(data) - valid
	v.offset += int64(valid)
	if err != nil {
		v.err = err
	}
}

// invalidIndex returns the position of the first malformed sequence in data,
// or -1 if data is valid UTF-8.
func invalidIndex(data []byte) int {
	if utf8.Valid(data) {
		return -1
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything other than a continuation byte ends the search
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// WrapForParsing strips a BOM and then validates UTF-8.
// The BOM must be removed first so it never reaches the header row.
func WrapForParsing(r io.Reader) io.Reader {
	return NewUTF8Validator(NewBOMSkippingReader(r))
}
