package container

import (
	"fmt"
	"strings"

	"github.com/keks/containerfs"
	"github.com/keks/containerfs/block"
)

// splitPath breaks a slash-separated path into segments. Empty
// segments and "." are discarded, so "", "/" and "." all resolve to
// the root. ".." is not supported.
func splitPath(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segs = append(segs, seg)
	}

	return segs
}

// sameName compares entry names the way existence checks do: trimmed
// and case-insensitive.
func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// findDirectory resolves path to a directory metadata block and its
// byte offset, walking from the root. Segment matching is byte-exact
// and never descends into files.
func (c *Container) findDirectory(path string) (*block.Metadata, int64, error) {
	pos := c.rootPosition()
	m, err := block.ReadMetadata(c.f, pos, c.blockSize)
	if err != nil {
		return nil, 0, err
	}

	for _, seg := range splitPath(path) {
		offs, err := m.ChildOffsets(c.f, c.blockSize)
		if err != nil {
			return nil, 0, err
		}

		var next *block.Metadata
		var nextPos int64
		for _, off := range offs {
			child, err := block.ReadMetadata(c.f, off, c.blockSize)
			if err != nil {
				return nil, 0, err
			}
			if child.Dir && child.Name == seg {
				next, nextPos = child, off
				break
			}
		}
		if next == nil {
			return nil, 0, fmt.Errorf("directory %q in %q: %w", seg, path, containerfs.ErrNotFound)
		}
		m, pos = next, nextPos
	}

	return m, pos, nil
}

// findFile locates the file called name among parent's children.
func (c *Container) findFile(parent *block.Metadata, name string) (*block.Metadata, int64, error) {
	offs, err := parent.ChildOffsets(c.f, c.blockSize)
	if err != nil {
		return nil, 0, err
	}

	for _, off := range offs {
		child, err := block.ReadMetadata(c.f, off, c.blockSize)
		if err != nil {
			return nil, 0, err
		}
		if child.File && sameName(child.Name, name) {
			return child, off, nil
		}
	}

	return nil, 0, fmt.Errorf("file %q: %w", name, containerfs.ErrFileNotFound)
}
