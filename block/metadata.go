package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/codec"
)

// Metadata describes one file or one directory.
type Metadata struct {
	// Parent is the byte offset of the containing directory's
	// metadata block; 0 for the root.
	Parent int64

	// ChildData is the byte offset of the first overflow data block,
	// or NoChild.
	ChildData int64

	// FullLength is the file's total byte length; 0 for directories.
	FullLength int

	Dir  bool
	File bool

	Name string

	Created time.Time
	Updated time.Time

	// Payload is the part of the file bytes, or of the packed child
	// offset array, stored locally in this block.
	Payload []byte
}

// MetadataCapacity is the local payload room of one metadata block.
func MetadataCapacity(blockSize int) int {
	return blockSize - containerfs.MetadataReserved
}

// DecodeMetadata parses a raw block as a metadata block.
func DecodeMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < containerfs.MetadataReserved {
		return nil, fmt.Errorf("metadata block of %d bytes: %w", len(buf), containerfs.ErrMalformed)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != containerfs.SigMetadata {
		return nil, fmt.Errorf("metadata block signature %x: %w", buf[0:4], containerfs.ErrMalformed)
	}

	local := int(int32(binary.LittleEndian.Uint32(buf[28:32])))
	if local < 0 || containerfs.MetadataReserved+local > len(buf) {
		return nil, fmt.Errorf("local length %d in %d-byte block: %w", local, len(buf), containerfs.ErrMalformed)
	}

	dir := binary.LittleEndian.Uint32(buf[32:36]) != 0
	file := binary.LittleEndian.Uint32(buf[36:40]) != 0
	if dir == file {
		return nil, fmt.Errorf("metadata block is neither file nor directory: %w", containerfs.ErrMalformed)
	}

	created, err := codec.ParseTime(buf[296 : 296+containerfs.TimestampSize])
	if err != nil {
		return nil, err
	}
	updated, err := codec.ParseTime(buf[328 : 328+containerfs.TimestampSize])
	if err != nil {
		return nil, err
	}

	m := &Metadata{
		Parent:     int64(binary.LittleEndian.Uint64(buf[4:12])),
		ChildData:  int64(binary.LittleEndian.Uint64(buf[12:20])),
		FullLength: int(int32(binary.LittleEndian.Uint32(buf[20:24]))),
		Dir:        dir,
		File:       file,
		Name:       string(codec.TrimNuls(buf[40 : 40+containerfs.NameSize])),
		Created:    created,
		Updated:    updated,
		Payload:    append([]byte(nil), buf[containerfs.MetadataReserved:containerfs.MetadataReserved+local]...),
	}

	return m, nil
}

// Encode renders the block as blockSize bytes.
func (m *Metadata) Encode(blockSize int) ([]byte, error) {
	if len(m.Name) == 0 || len(m.Name) > containerfs.NameSize {
		return nil, fmt.Errorf("name of %d bytes: %w", len(m.Name), containerfs.ErrInvalidParam)
	}
	if len(m.Payload) > MetadataCapacity(blockSize) {
		return nil, fmt.Errorf("metadata payload of %d bytes, capacity %d: %w",
			len(m.Payload), MetadataCapacity(blockSize), containerfs.ErrInvalidParam)
	}
	if m.Dir == m.File {
		return nil, fmt.Errorf("metadata block must be file or directory: %w", containerfs.ErrInvalidParam)
	}

	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(buf[0:4], containerfs.SigMetadata)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(m.Parent))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(m.ChildData))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(m.FullLength))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(m.Payload)))
	if m.Dir {
		binary.LittleEndian.PutUint32(buf[32:36], 1)
	}
	if m.File {
		binary.LittleEndian.PutUint32(buf[36:40], 1)
	}
	codec.PutPadded(buf[40:40+containerfs.NameSize], m.Name)
	codec.PutPadded(buf[296:296+containerfs.TimestampSize], codec.FormatTime(m.Created))
	codec.PutPadded(buf[328:328+containerfs.TimestampSize], codec.FormatTime(m.Updated))
	copy(buf[containerfs.MetadataReserved:], m.Payload)

	return buf, nil
}

// ReadMetadata loads and decodes the metadata block at pos.
func ReadMetadata(r io.ReaderAt, pos int64, blockSize int) (*Metadata, error) {
	buf, err := codec.ReadAt(r, pos, blockSize)
	if err != nil {
		return nil, err
	}

	return DecodeMetadata(buf)
}

// FileData reassembles the file payload: the local portion followed by
// the overflow chain.
func (m *Metadata) FileData(r io.ReaderAt, blockSize int) ([]byte, error) {
	if !m.File {
		return nil, fmt.Errorf("%q is not a file: %w", m.Name, containerfs.ErrInvalidParam)
	}

	out := append([]byte(nil), m.Payload...)
	if m.ChildData >= 0 {
		rest, err := ReadChain(r, m.ChildData, blockSize)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}

	return out, nil
}

// ChildOffsets decodes the directory's packed child-metadata offsets,
// local portion first, then the overflow chain.
func (m *Metadata) ChildOffsets(r io.ReaderAt, blockSize int) ([]int64, error) {
	if !m.Dir {
		return nil, fmt.Errorf("%q is not a directory: %w", m.Name, containerfs.ErrInvalidParam)
	}

	packed := append([]byte(nil), m.Payload...)
	if m.ChildData >= 0 {
		rest, err := ReadChain(r, m.ChildData, blockSize)
		if err != nil {
			return nil, err
		}
		packed = append(packed, rest...)
	}

	return codec.UnpackOffsets(packed)
}

// DataBlockCount returns the length of the overflow chain.
func (m *Metadata) DataBlockCount(r io.ReaderAt, blockSize int) (int, error) {
	if m.ChildData < 0 {
		return 0, nil
	}

	offs, err := ChainOffsets(r, m.ChildData, blockSize)
	if err != nil {
		return 0, err
	}

	return len(offs), nil
}
