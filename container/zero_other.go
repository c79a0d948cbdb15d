//go:build !linux

package container

import "github.com/keks/containerfs/codec"

func (c *Container) zeroBlock(pos int64) error {
	return codec.WriteAt(c.f, pos, c.zeroes)
}
