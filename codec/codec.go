// Package codec implements the fixed-width, little-endian byte layer
// shared by every block kind: exact reads and writes at absolute
// offsets, NUL-padded string fields, packed int64 offset arrays and
// the on-disk timestamp format.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/keks/containerfs"
)

// TimeLayout is the on-disk timestamp format, MM/dd/yyyy HH:mm:ss.ffffff.
const TimeLayout = "01/02/2006 15:04:05.000000"

// ReadAt reads exactly count bytes at absolute offset off.
func ReadAt(r io.ReaderAt, off int64, count int) ([]byte, error) {
	buf := make([]byte, count)

	n, err := r.ReadAt(buf, off)
	if n == count {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = containerfs.ErrShortRead
	}

	return nil, fmt.Errorf("read %d bytes at %d, want %d: %w", n, off, count, err)
}

// WriteAt writes data at absolute offset off. Empty input is a no-op.
func WriteAt(w io.WriterAt, off int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	n, err := w.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("write at %d: %w", off, err)
	}
	if n != len(data) {
		return fmt.Errorf("wrote %d bytes at %d, want %d: %w", n, off, len(data), containerfs.ErrShortWrite)
	}

	return nil
}

// TrimNuls strips trailing NUL padding from a fixed-width field.
func TrimNuls(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}

	return b[:end]
}

// PutPadded copies s into dst, NUL-padding the remainder. The string
// is truncated if it does not fit.
func PutPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// PackOffsets encodes offs as consecutive little-endian 8-byte values.
func PackOffsets(offs []int64) []byte {
	buf := make([]byte, len(offs)*containerfs.OffsetSize)
	for i, off := range offs {
		binary.LittleEndian.PutUint64(buf[i*containerfs.OffsetSize:], uint64(off))
	}

	return buf
}

// UnpackOffsets decodes a packed offset array. The input length must
// be a multiple of 8.
func UnpackOffsets(buf []byte) ([]int64, error) {
	if len(buf)%containerfs.OffsetSize != 0 {
		return nil, fmt.Errorf("offset array of %d bytes: %w", len(buf), containerfs.ErrMalformed)
	}

	offs := make([]int64, len(buf)/containerfs.OffsetSize)
	for i := range offs {
		offs[i] = int64(binary.LittleEndian.Uint64(buf[i*containerfs.OffsetSize:]))
	}

	return offs, nil
}

// FormatTime renders t in the on-disk timestamp format, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a timestamp field, ignoring NUL padding.
func ParseTime(b []byte) (time.Time, error) {
	t, err := time.Parse(TimeLayout, string(TrimNuls(b)))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", containerfs.ErrMalformed)
	}

	return t, nil
}
