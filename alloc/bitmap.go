// Package alloc owns the free-block bitmap. Bit i set means block i is
// free. Every mutation is persisted to the header block before it
// returns, so the on-disk bitmap never lags the in-memory one.
package alloc

import (
	"fmt"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/codec"
)

// Bitmap tracks which blocks of the container are free.
type Bitmap struct {
	lower containerfs.ReadWriterAt

	bits       []byte
	blockSize  int
	blockCount int
}

// New returns a bitmap with every block free, backed by lower for
// persistence. Nothing is written until the first mutation.
func New(lower containerfs.ReadWriterAt, blockSize, blockCount int) *Bitmap {
	bits := make([]byte, (blockCount+7)/8)
	for i := range bits {
		bits[i] = 0xFF
	}

	return &Bitmap{
		lower:      lower,
		bits:       bits,
		blockSize:  blockSize,
		blockCount: blockCount,
	}
}

// Load reconstructs a bitmap from its on-disk bytes.
func Load(lower containerfs.ReadWriterAt, blockSize, blockCount int, bits []byte) (*Bitmap, error) {
	if len(bits) < (blockCount+7)/8 {
		return nil, fmt.Errorf("bitmap of %d bytes for %d blocks: %w", len(bits), blockCount, containerfs.ErrMalformed)
	}

	bm := &Bitmap{
		lower:      lower,
		bits:       append([]byte(nil), bits[:(blockCount+7)/8]...),
		blockSize:  blockSize,
		blockCount: blockCount,
	}

	return bm, nil
}

// Bytes returns the raw bitmap as it is written to disk.
func (bm *Bitmap) Bytes() []byte {
	return append([]byte(nil), bm.bits...)
}

// IsFree reports whether block idx is free.
func (bm *Bitmap) IsFree(idx int) bool {
	return bm.bits[idx/8]&(1<<uint(idx%8)) != 0
}

// CountFree returns the number of free blocks.
func (bm *Bitmap) CountFree() int {
	var n int
	for i := 0; i < bm.blockCount; i++ {
		if bm.IsFree(i) {
			n++
		}
	}

	return n
}

// MarkUsed clears the free bit of block idx and persists the bitmap.
func (bm *Bitmap) MarkUsed(idx int) error {
	if err := bm.checkIndex(idx); err != nil {
		return err
	}
	bm.bits[idx/8] &^= 1 << uint(idx%8)

	return bm.persist()
}

// MarkFree sets the free bit of block idx and persists the bitmap.
func (bm *Bitmap) MarkFree(idx int) error {
	if err := bm.checkIndex(idx); err != nil {
		return err
	}
	bm.bits[idx/8] |= 1 << uint(idx%8)

	return bm.persist()
}

// Allocate finds the first n free blocks scanning from index 0, marks
// them used and returns their byte offsets in scan order. If fewer
// than n blocks are free, no block is marked.
func (bm *Bitmap) Allocate(n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("allocate %d blocks: %w", n, containerfs.ErrInvalidParam)
	}

	idxs := make([]int, 0, n)
	for i := 0; i < bm.blockCount && len(idxs) < n; i++ {
		if bm.IsFree(i) {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) < n {
		return nil, fmt.Errorf("allocate %d blocks, %d free: %w", n, len(idxs), containerfs.ErrNoSpace)
	}

	positions := make([]int64, n)
	for i, idx := range idxs {
		bm.bits[idx/8] &^= 1 << uint(idx%8)
		positions[i] = int64(idx) * int64(bm.blockSize)
	}

	return positions, bm.persist()
}

// Release marks the blocks at the given byte offsets free.
func (bm *Bitmap) Release(positions []int64) error {
	for _, pos := range positions {
		idx := int(pos / int64(bm.blockSize))
		if err := bm.checkIndex(idx); err != nil {
			return err
		}
		bm.bits[idx/8] |= 1 << uint(idx%8)
	}

	return bm.persist()
}

func (bm *Bitmap) checkIndex(idx int) error {
	if idx < 0 || idx >= bm.blockCount {
		return fmt.Errorf("block index %d of %d: %w", idx, bm.blockCount, containerfs.ErrInvalidParam)
	}

	return nil
}

func (bm *Bitmap) persist() error {
	return codec.WriteAt(bm.lower, containerfs.BitmapOffset, bm.bits)
}
