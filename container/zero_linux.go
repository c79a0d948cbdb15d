//go:build linux

package container

import (
	"golang.org/x/sys/unix"

	"github.com/keks/containerfs/codec"
)

// zeroBlock punches a hole over the block so released blocks stop
// occupying disk. Filesystems without hole support get plain zeroes.
func (c *Container) zeroBlock(pos int64) error {
	err := unix.Fallocate(int(c.f.Fd()),
		unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE,
		pos, int64(c.blockSize))
	if err == nil {
		return nil
	}

	return codec.WriteAt(c.f, pos, c.zeroes)
}
