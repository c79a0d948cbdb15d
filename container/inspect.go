package container

import (
	"encoding/binary"
	"fmt"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/block"
	"github.com/keks/containerfs/codec"
)

// ReadRawBlock returns the raw bytes of the block at position.
func (c *Container) ReadRawBlock(position int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkPosition(position); err != nil {
		return nil, err
	}

	return codec.ReadAt(c.f, position, c.blockSize)
}

// EnumerateBlock describes the block at position, dispatching on the
// signature in its first four bytes.
func (c *Container) EnumerateBlock(position int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkPosition(position); err != nil {
		return "", err
	}

	buf, err := codec.ReadAt(c.f, position, c.blockSize)
	if err != nil {
		return "", err
	}

	switch binary.LittleEndian.Uint32(buf[0:4]) {
	case containerfs.SigHeader:
		return fmt.Sprintf("header block: container %q, %d blocks of %d bytes, %d free",
			c.name, c.blockCount, c.blockSize, c.bitmap.CountFree()), nil

	case containerfs.SigMetadata:
		m, err := block.DecodeMetadata(buf)
		if err != nil {
			return "", err
		}
		kind := "file"
		if m.Dir {
			kind = "directory"
		}
		return fmt.Sprintf("metadata block: %s %q, parent %d, child data %d, %d/%d payload bytes local",
			kind, m.Name, m.Parent, m.ChildData, len(m.Payload), m.FullLength), nil

	case containerfs.SigData:
		d, err := block.DecodeData(buf)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("data block: %d payload bytes, parent %d, child %d",
			len(d.Payload), d.Parent, d.Child), nil
	}

	return "", fmt.Errorf("block at %d has signature %x: %w", position, buf[0:4], containerfs.ErrMalformed)
}

func (c *Container) checkPosition(position int64) error {
	if position < 0 || position%int64(c.blockSize) != 0 ||
		position >= int64(c.blockSize)*int64(c.blockCount) {
		return fmt.Errorf("block position %d: %w", position, containerfs.ErrInvalidParam)
	}

	return nil
}
