// Package container implements the container file proper: the header
// block, the free-block bitmap and the tree of metadata and data
// blocks behind the file and directory operations.
//
// A container is single-writer. The outer mutex serializes whole
// operations; the allocator, metadata and data writes of one
// operation must be observed atomically, so there is no finer
// locking below it.
package container

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/alloc"
	"github.com/keks/containerfs/block"
	"github.com/keks/containerfs/codec"
	"github.com/keks/containerfs/logger"
)

const (
	// blockSizeStep is the granularity of the block size and the
	// block count.
	blockSizeStep = 4096

	// initialReservation is how many blocks the container file is
	// truncated to at creation. Writes beyond it extend the file.
	initialReservation = 256

	sigOffset        = 0
	versionOffset    = 8
	nameOffset       = 16
	blockSizeOffset  = 288
	blockCountOffset = 296
	createdOffset    = 304
)

// Container is an open container file.
type Container struct {
	mu  sync.Mutex
	f   *os.File
	log *logger.Logger

	version    int
	name       string
	blockSize  int
	blockCount int
	created    time.Time

	bitmap *alloc.Bitmap
	zeroes []byte
}

// Stats is a point-in-time summary of a container.
type Stats struct {
	Version    int
	Name       string
	BlockSize  int
	BlockCount int
	FreeBlocks int
	TotalBytes int64
	FreeBytes  int64
	Created    time.Time
}

// Create initializes a new container file. The file must not exist.
// Block 0 becomes the header, block 1 the root directory.
func Create(filename, containerName string, blockSize, blockCount int, logging bool) (*Container, error) {
	if err := checkGeometry(blockSize, blockCount); err != nil {
		return nil, err
	}
	if len(containerName) > containerfs.NameSize {
		return nil, fmt.Errorf("container name of %d bytes: %w", len(containerName), containerfs.ErrInvalidParam)
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	if err := f.Truncate(int64(blockSize) * initialReservation); err != nil {
		f.Close()
		return nil, fmt.Errorf("reserve %s: %w", filename, err)
	}

	c := &Container{
		f:          f,
		log:        logger.New(logging),
		version:    containerfs.Version,
		name:       containerName,
		blockSize:  blockSize,
		blockCount: blockCount,
		created:    time.Now().UTC().Truncate(time.Microsecond),
		zeroes:     make([]byte, blockSize),
	}

	if err := c.writeHeaderFields(); err != nil {
		f.Close()
		return nil, err
	}

	c.bitmap = alloc.New(f, blockSize, blockCount)
	if err := c.bitmap.MarkUsed(0); err != nil {
		f.Close()
		return nil, err
	}
	if err := c.bitmap.MarkUsed(1); err != nil {
		f.Close()
		return nil, err
	}

	root := &block.Metadata{
		Parent:    0,
		ChildData: containerfs.NoChild,
		Dir:       true,
		Name:      ".",
		Created:   c.created,
		Updated:   c.created,
	}
	if err := c.writeMetadata(root, int64(blockSize)); err != nil {
		f.Close()
		return nil, err
	}

	c.log.Info(fmt.Sprintf("created container %s: %d blocks of %d bytes", filename, blockCount, blockSize))

	return c, nil
}

// Open loads an existing container file.
func Open(filename string, logging bool) (*Container, error) {
	f, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	c, err := load(f, logging)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	c.log.Info(fmt.Sprintf("opened container %s: %d blocks of %d bytes, %d free",
		filename, c.blockCount, c.blockSize, c.bitmap.CountFree()))

	return c, nil
}

func load(f *os.File, logging bool) (*Container, error) {
	fixed, err := codec.ReadAt(f, 0, containerfs.HeaderReserved)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(fixed[sigOffset:]) != containerfs.SigHeader {
		return nil, fmt.Errorf("header signature %x: %w", fixed[0:4], containerfs.ErrMalformed)
	}

	version := int(binary.LittleEndian.Uint32(fixed[versionOffset:]))
	if version != containerfs.Version {
		return nil, fmt.Errorf("header version %d: %w", version, containerfs.ErrMalformed)
	}

	blockSize := int(binary.LittleEndian.Uint32(fixed[blockSizeOffset:]))
	blockCount := int(binary.LittleEndian.Uint32(fixed[blockCountOffset:]))
	if err := checkGeometry(blockSize, blockCount); err != nil {
		return nil, err
	}

	created, err := codec.ParseTime(fixed[createdOffset : createdOffset+containerfs.TimestampSize])
	if err != nil {
		return nil, err
	}

	bits, err := codec.ReadAt(f, containerfs.BitmapOffset, blockCount/8)
	if err != nil {
		return nil, err
	}
	bitmap, err := alloc.Load(f, blockSize, blockCount, bits)
	if err != nil {
		return nil, err
	}

	c := &Container{
		f:          f,
		log:        logger.New(logging),
		version:    version,
		name:       string(codec.TrimNuls(fixed[nameOffset : nameOffset+containerfs.NameSize])),
		blockSize:  blockSize,
		blockCount: blockCount,
		created:    created,
		bitmap:     bitmap,
		zeroes:     make([]byte, blockSize),
	}

	return c, nil
}

// Close releases the container's file handle.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.f.Close()
}

// Stats summarizes the container.
func (c *Container) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	free := c.bitmap.CountFree()

	return Stats{
		Version:    c.version,
		Name:       c.name,
		BlockSize:  c.blockSize,
		BlockCount: c.blockCount,
		FreeBlocks: free,
		TotalBytes: int64(c.blockSize) * int64(c.blockCount),
		FreeBytes:  int64(c.blockSize) * int64(free),
		Created:    c.created,
	}
}

// BlockSize returns the block size in bytes.
func (c *Container) BlockSize() int { return c.blockSize }

// BlockCount returns the number of blocks in the pool.
func (c *Container) BlockCount() int { return c.blockCount }

// Name returns the container name from the header.
func (c *Container) Name() string { return c.name }

// BitmapBytes returns a copy of the free-block bitmap.
func (c *Container) BitmapBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bitmap.Bytes()
}

func checkGeometry(blockSize, blockCount int) error {
	switch {
	case blockSize < blockSizeStep || blockSize%blockSizeStep != 0:
		return fmt.Errorf("block size %d: %w", blockSize, containerfs.ErrInvalidParam)
	case blockCount < blockSizeStep || blockCount%blockSizeStep != 0:
		return fmt.Errorf("block count %d: %w", blockCount, containerfs.ErrInvalidParam)
	case blockSize < blockCount/4:
		// the bitmap must fit behind the fixed header fields
		return fmt.Errorf("bitmap for %d blocks does not fit a %d-byte block: %w",
			blockCount, blockSize, containerfs.ErrInvalidParam)
	}

	return nil
}

// writeHeaderFields writes the fixed part of the header block. The
// bitmap behind it is persisted by the allocator.
func (c *Container) writeHeaderFields() error {
	buf := make([]byte, containerfs.HeaderReserved)
	binary.LittleEndian.PutUint32(buf[sigOffset:], containerfs.SigHeader)
	binary.LittleEndian.PutUint32(buf[versionOffset:], uint32(c.version))
	codec.PutPadded(buf[nameOffset:nameOffset+containerfs.NameSize], c.name)
	binary.LittleEndian.PutUint32(buf[blockSizeOffset:], uint32(c.blockSize))
	binary.LittleEndian.PutUint32(buf[blockCountOffset:], uint32(c.blockCount))
	codec.PutPadded(buf[createdOffset:createdOffset+containerfs.TimestampSize], codec.FormatTime(c.created))

	return codec.WriteAt(c.f, 0, buf)
}

func (c *Container) writeMetadata(m *block.Metadata, pos int64) error {
	buf, err := m.Encode(c.blockSize)
	if err != nil {
		return err
	}

	return codec.WriteAt(c.f, pos, buf)
}

func (c *Container) writeData(d *block.Data, pos int64) error {
	buf, err := d.Encode(c.blockSize)
	if err != nil {
		return err
	}

	return codec.WriteAt(c.f, pos, buf)
}

func (c *Container) rootPosition() int64 {
	return int64(c.blockSize)
}
