package container

import (
	"fmt"
	"time"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/block"
)

// ReadFile returns the full payload of the file called name in the
// directory at path.
func (c *Container) ReadFile(path, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _, err := c.lookupFile(path, name)
	if err != nil {
		return nil, err
	}

	return m.FileData(c.f, c.blockSize)
}

// ReadFileRange returns count bytes of the file starting at start.
func (c *Container) ReadFileRange(path, name string, start, count int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _, err := c.lookupFile(path, name)
	if err != nil {
		return nil, err
	}

	if start < 0 || count < 0 || start > m.FullLength || start+count > m.FullLength {
		return nil, fmt.Errorf("range [%d, %d) of %d-byte file: %w",
			start, start+count, m.FullLength, containerfs.ErrOutOfRange)
	}

	data, err := m.FileData(c.f, c.blockSize)
	if err != nil {
		return nil, err
	}

	return data[start : start+count], nil
}

// WriteFile stores data as a new file called name in the directory at
// path. The payload beyond the metadata block's local capacity is
// chained across data blocks.
func (c *Container) WriteFile(path, name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" || len(name) > containerfs.NameSize {
		return fmt.Errorf("file name of %d bytes: %w", len(name), containerfs.ErrInvalidParam)
	}

	parent, parentPos, err := c.findDirectory(path)
	if err != nil {
		return err
	}

	if _, _, err := c.findFile(parent, name); err == nil {
		return fmt.Errorf("file %q: %w", name, containerfs.ErrExists)
	}

	local := block.MetadataCapacity(c.blockSize)
	if local > len(data) {
		local = len(data)
	}
	overflow := 0
	if rest := len(data) - local; rest > 0 {
		overflow = (rest + block.DataCapacity(c.blockSize) - 1) / block.DataCapacity(c.blockSize)
	}

	positions, err := c.bitmap.Allocate(overflow + 1)
	if err != nil {
		return err
	}
	metaPos := positions[0]

	now := time.Now().UTC()
	m := &block.Metadata{
		Parent:     parentPos,
		ChildData:  containerfs.NoChild,
		FullLength: len(data),
		File:       true,
		Name:       name,
		Created:    now,
		Updated:    now,
		Payload:    data[:local],
	}
	if overflow > 0 {
		m.ChildData = positions[1]
	}

	for k, d := range block.BuildChain(metaPos, positions[1:], data[local:], c.blockSize) {
		if err := c.writeData(d, positions[1+k]); err != nil {
			return err
		}
	}
	if err := c.writeMetadata(m, metaPos); err != nil {
		return err
	}

	if err := c.appendChild(parent, parentPos, metaPos); err != nil {
		return err
	}

	c.log.Info(fmt.Sprintf("wrote file %s/%s: %d bytes in %d blocks", path, name, len(data), overflow+1))

	return nil
}

// DeleteFile removes the file called name from the directory at path,
// zero-filling and releasing its metadata block and data chain.
func (c *Container) DeleteFile(path, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, parentPos, err := c.findDirectory(path)
	if err != nil {
		return err
	}

	m, pos, err := c.findFile(parent, name)
	if err != nil {
		return err
	}

	if err := c.freeChain(m.ChildData); err != nil {
		return err
	}
	if err := c.zeroAndRelease([]int64{pos}); err != nil {
		return err
	}

	if err := c.removeChild(parent, parentPos, pos); err != nil {
		return err
	}

	c.log.Info(fmt.Sprintf("deleted file %s/%s at %d", path, name, pos))

	return nil
}

func (c *Container) lookupFile(path, name string) (*block.Metadata, int64, error) {
	parent, _, err := c.findDirectory(path)
	if err != nil {
		return nil, 0, err
	}

	return c.findFile(parent, name)
}
