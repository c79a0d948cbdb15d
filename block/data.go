// Package block implements the two chained block kinds of a container:
// data blocks carrying raw payload and metadata blocks describing one
// file or directory each. Both share the signature+parent layout
// prefix; the container dispatches on the signature.
package block

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/codec"
)

// Data is one payload block of a forward-linked chain.
type Data struct {
	// Parent is the byte offset of the previous block in the chain;
	// for the first block, of the owning metadata block.
	Parent int64

	// Child is the byte offset of the next block, or NoChild.
	Child int64

	// Payload holds exactly dataLength bytes.
	Payload []byte
}

// DataCapacity is the payload room of one data block.
func DataCapacity(blockSize int) int {
	return blockSize - containerfs.DataReserved
}

// DecodeData parses a raw block as a data block.
func DecodeData(buf []byte) (*Data, error) {
	if len(buf) < containerfs.DataReserved {
		return nil, fmt.Errorf("data block of %d bytes: %w", len(buf), containerfs.ErrMalformed)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != containerfs.SigData {
		return nil, fmt.Errorf("data block signature %x: %w", buf[0:4], containerfs.ErrMalformed)
	}

	length := int(int32(binary.LittleEndian.Uint32(buf[20:24])))
	if length < 0 || containerfs.DataReserved+length > len(buf) {
		return nil, fmt.Errorf("data length %d in %d-byte block: %w", length, len(buf), containerfs.ErrMalformed)
	}

	d := &Data{
		Parent:  int64(binary.LittleEndian.Uint64(buf[4:12])),
		Child:   int64(binary.LittleEndian.Uint64(buf[12:20])),
		Payload: append([]byte(nil), buf[containerfs.DataReserved:containerfs.DataReserved+length]...),
	}

	return d, nil
}

// Encode renders the block as blockSize bytes.
func (d *Data) Encode(blockSize int) ([]byte, error) {
	if len(d.Payload) > DataCapacity(blockSize) {
		return nil, fmt.Errorf("data payload of %d bytes, capacity %d: %w",
			len(d.Payload), DataCapacity(blockSize), containerfs.ErrInvalidParam)
	}

	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(buf[0:4], containerfs.SigData)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(d.Parent))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(d.Child))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(d.Payload)))
	copy(buf[containerfs.DataReserved:], d.Payload)

	return buf, nil
}

// ReadData loads and decodes the data block at pos.
func ReadData(r io.ReaderAt, pos int64, blockSize int) (*Data, error) {
	buf, err := codec.ReadAt(r, pos, blockSize)
	if err != nil {
		return nil, err
	}

	return DecodeData(buf)
}

// ReadChain walks the chain starting at pos and concatenates the
// payloads. A child offset of NoChild or an empty block ends the
// chain.
func ReadChain(r io.ReaderAt, pos int64, blockSize int) ([]byte, error) {
	var out []byte
	for pos >= 0 {
		d, err := ReadData(r, pos, blockSize)
		if err != nil {
			return nil, err
		}
		if len(d.Payload) == 0 {
			break
		}
		out = append(out, d.Payload...)
		pos = d.Child
	}

	return out, nil
}

// ChainOffsets returns the byte offsets of every block in the chain
// starting at pos, in chain order.
func ChainOffsets(r io.ReaderAt, pos int64, blockSize int) ([]int64, error) {
	var offs []int64
	for pos >= 0 {
		d, err := ReadData(r, pos, blockSize)
		if err != nil {
			return nil, err
		}
		offs = append(offs, pos)
		if len(d.Payload) == 0 {
			break
		}
		pos = d.Child
	}

	return offs, nil
}

// BuildChain slices payload across the pre-allocated positions and
// links the blocks forward. The first block's parent is owner. Every
// block but the last is filled to capacity.
func BuildChain(owner int64, positions []int64, payload []byte, blockSize int) []*Data {
	capacity := DataCapacity(blockSize)
	chain := make([]*Data, len(positions))

	for k := range positions {
		parent := owner
		if k > 0 {
			parent = positions[k-1]
		}
		child := containerfs.NoChild
		if k < len(positions)-1 {
			child = positions[k+1]
		}

		n := capacity
		if n > len(payload) {
			n = len(payload)
		}
		chain[k] = &Data{
			Parent:  parent,
			Child:   child,
			Payload: payload[:n],
		}
		payload = payload[n:]
	}

	return chain
}
