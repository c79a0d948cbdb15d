package containerfs // import "github.com/keks/containerfs"

import (
	"errors"
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// On-disk layout

// Version is the container format version written to the header block.
const Version = 1

// Block signatures, stored little-endian in bytes 0..4 of every block.
const (
	SigHeader   uint32 = 0x01010101
	SigMetadata uint32 = 0x0F0F0F0F
	SigData     uint32 = 0xFFFFFFFF
)

// Reserved header sizes per block kind. The remainder of each block is
// payload.
const (
	HeaderReserved   = 1024 // fixed header fields; the bitmap follows
	MetadataReserved = 512
	DataReserved     = 64
)

const (
	// NameSize is the fixed width of the name fields, NUL-padded.
	NameSize = 256

	// TimestampSize is the fixed width of timestamp fields, NUL-padded.
	TimestampSize = 32

	// OffsetSize is the width of one entry in a packed offset array.
	OffsetSize = 8
)

// NoChild marks the absence of a chained block.
const NoChild int64 = -1

// BitmapOffset is where the free-block bitmap starts inside the header
// block.
const BitmapOffset = 1024

// Errors

var (
	ErrInvalidParam = errors.New("containerfs: invalid parameter")
	ErrExists       = errors.New("containerfs: already exists")
	ErrNotFound     = errors.New("containerfs: directory not found")
	ErrFileNotFound = errors.New("containerfs: file not found")
	ErrNotEmpty     = errors.New("containerfs: directory not empty")
	ErrNoSpace      = errors.New("containerfs: no free blocks")
	ErrOutOfRange   = errors.New("containerfs: read range out of bounds")
	ErrMalformed    = errors.New("containerfs: malformed block")
	ErrShortRead    = errors.New("containerfs: short read")
	ErrShortWrite   = errors.New("containerfs: short write")
)
