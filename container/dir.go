package container

import (
	"fmt"
	"strings"
	"time"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/block"
	"github.com/keks/containerfs/codec"
)

// FileInfo is one file entry of a directory listing.
type FileInfo struct {
	Name string
	Size int
}

// Listing is the decoded content of one directory.
type Listing struct {
	Files       []FileInfo
	Directories []string

	// Position is the byte offset of the directory's metadata block.
	Position int64
}

// ReadDirectory enumerates the directory at path.
func (c *Container) ReadDirectory(path string) (*Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, pos, err := c.findDirectory(path)
	if err != nil {
		return nil, err
	}

	offs, err := m.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Position: pos}
	for _, off := range offs {
		child, err := block.ReadMetadata(c.f, off, c.blockSize)
		if err != nil {
			return nil, err
		}
		if child.Dir {
			listing.Directories = append(listing.Directories, child.Name)
		} else {
			listing.Files = append(listing.Files, FileInfo{Name: child.Name, Size: child.FullLength})
		}
	}

	return listing, nil
}

// WriteDirectory creates the directory named by the last segment of
// path under the directory named by the rest.
func (c *Container) WriteDirectory(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("directory path %q: %w", path, containerfs.ErrInvalidParam)
	}
	name := segs[len(segs)-1]
	if len(name) > containerfs.NameSize {
		return fmt.Errorf("directory name of %d bytes: %w", len(name), containerfs.ErrInvalidParam)
	}

	parent, parentPos, err := c.findDirectory(strings.Join(segs[:len(segs)-1], "/"))
	if err != nil {
		return err
	}

	offs, err := parent.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return err
	}
	for _, off := range offs {
		child, err := block.ReadMetadata(c.f, off, c.blockSize)
		if err != nil {
			return err
		}
		if sameName(child.Name, name) {
			return fmt.Errorf("entry %q: %w", name, containerfs.ErrExists)
		}
	}

	positions, err := c.bitmap.Allocate(1)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m := &block.Metadata{
		Parent:    parentPos,
		ChildData: containerfs.NoChild,
		Dir:       true,
		Name:      name,
		Created:   now,
		Updated:   now,
	}
	if err := c.writeMetadata(m, positions[0]); err != nil {
		return err
	}

	if err := c.appendChild(parent, parentPos, positions[0]); err != nil {
		return err
	}

	c.log.Info(fmt.Sprintf("mkdir %s at %d", path, positions[0]))

	return nil
}

// DeleteDirectory removes the empty directory at path, releasing its
// metadata block and any child-list overflow blocks.
func (c *Container) DeleteDirectory(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(splitPath(path)) == 0 {
		return fmt.Errorf("cannot delete the root directory: %w", containerfs.ErrInvalidParam)
	}

	m, pos, err := c.findDirectory(path)
	if err != nil {
		return err
	}

	offs, err := m.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return err
	}
	if len(offs) > 0 {
		return fmt.Errorf("directory %q has %d entries: %w", path, len(offs), containerfs.ErrNotEmpty)
	}

	if err := c.freeChain(m.ChildData); err != nil {
		return err
	}
	if err := c.zeroAndRelease([]int64{pos}); err != nil {
		return err
	}

	parent, err := block.ReadMetadata(c.f, m.Parent, c.blockSize)
	if err != nil {
		return err
	}
	if err := c.removeChild(parent, m.Parent, pos); err != nil {
		return err
	}

	c.log.Info(fmt.Sprintf("rmdir %s at %d", path, pos))

	return nil
}

// appendChild adds childPos to the directory's child list.
func (c *Container) appendChild(m *block.Metadata, pos, childPos int64) error {
	offs, err := m.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return err
	}

	return c.setChildList(m, pos, append(offs, childPos))
}

// removeChild drops childPos from the directory's child list.
func (c *Container) removeChild(m *block.Metadata, pos, childPos int64) error {
	offs, err := m.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return err
	}

	kept := offs[:0]
	for _, off := range offs {
		if off != childPos {
			kept = append(kept, off)
		}
	}

	return c.setChildList(m, pos, kept)
}

// setChildList rewrites the directory's child list. Overflow blocks
// of the previous list are reused in place: a shrinking list never
// allocates, a growing list allocates only the missing tail, and the
// old list stays intact on disk until the rewrite cannot fail for
// lack of space. Blocks the new list no longer needs are released at
// the end, so rewrites never leak.
func (c *Container) setChildList(m *block.Metadata, pos int64, offs []int64) error {
	var oldChain []int64
	if m.ChildData >= 0 {
		var err error
		oldChain, err = block.ChainOffsets(c.f, m.ChildData, c.blockSize)
		if err != nil {
			return err
		}
	}

	packed := codec.PackOffsets(offs)
	local := block.MetadataCapacity(c.blockSize)
	if local > len(packed) {
		local = len(packed)
	}
	rest := packed[local:]
	need := (len(rest) + block.DataCapacity(c.blockSize) - 1) / block.DataCapacity(c.blockSize)

	positions := oldChain
	if need <= len(oldChain) {
		positions = oldChain[:need]
	} else {
		extra, err := c.bitmap.Allocate(need - len(oldChain))
		if err != nil {
			return err
		}
		positions = append(append([]int64(nil), oldChain...), extra...)
	}

	m.Payload = packed[:local]
	m.ChildData = containerfs.NoChild
	if need > 0 {
		m.ChildData = positions[0]
	}
	m.Updated = time.Now().UTC()

	for k, d := range block.BuildChain(pos, positions, rest, c.blockSize) {
		if err := c.writeData(d, positions[k]); err != nil {
			return err
		}
	}
	if err := c.writeMetadata(m, pos); err != nil {
		return err
	}

	if need < len(oldChain) {
		return c.zeroAndRelease(oldChain[need:])
	}

	return nil
}

// freeChain zero-fills and releases every block of the chain starting
// at from.
func (c *Container) freeChain(from int64) error {
	if from < 0 {
		return nil
	}

	offs, err := block.ChainOffsets(c.f, from, c.blockSize)
	if err != nil {
		return err
	}

	return c.zeroAndRelease(offs)
}

func (c *Container) zeroAndRelease(offs []int64) error {
	for _, off := range offs {
		if err := c.zeroBlock(off); err != nil {
			return err
		}
	}

	return c.bitmap.Release(offs)
}
