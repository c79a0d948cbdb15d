package container

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/containerfs"
)

const (
	testBlockSize  = 4096
	testBlockCount = 4096

	localCapacity = testBlockSize - containerfs.MetadataReserved
	dataCapacity  = testBlockSize - containerfs.DataReserved
)

func newTestContainer(t *testing.T) (*Container, string) {
	t.Helper()

	filename := filepath.Join(t.TempDir(), "c.cfs")
	c, err := Create(filename, "testcontainer", testBlockSize, testBlockCount, false)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, filename
}

func TestCreateGeometry(t *testing.T) {
	dir := t.TempDir()

	tcs := []struct {
		name       string
		blockSize  int
		blockCount int
	}{
		{"block size too small", 2048, 4096},
		{"block size not a multiple", 5000, 4096},
		{"block count too small", 4096, 100},
		{"block count not a multiple", 4096, 5000},
		{"bitmap does not fit", 4096, 4096 * 16},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(filepath.Join(dir, tc.name), "x", tc.blockSize, tc.blockCount, false)
			require.ErrorIs(t, err, containerfs.ErrInvalidParam)
		})
	}
}

func TestCreateExisting(t *testing.T) {
	_, filename := newTestContainer(t)

	_, err := Create(filename, "again", testBlockSize, testBlockCount, false)
	require.Error(t, err)
}

func TestCreateStats(t *testing.T) {
	c, _ := newTestContainer(t)

	stats := c.Stats()
	require.Equal(t, containerfs.Version, stats.Version)
	require.Equal(t, "testcontainer", stats.Name)
	require.Equal(t, testBlockSize, stats.BlockSize)
	require.Equal(t, testBlockCount, stats.BlockCount)
	require.Equal(t, testBlockCount-2, stats.FreeBlocks)
	require.Equal(t, int64(testBlockSize)*int64(testBlockCount), stats.TotalBytes)
	require.Equal(t, int64(testBlockSize)*int64(testBlockCount-2), stats.FreeBytes)

	listing, err := c.ReadDirectory("/")
	require.NoError(t, err)
	require.Empty(t, listing.Files)
	require.Empty(t, listing.Directories)
	require.Equal(t, int64(testBlockSize), listing.Position)
}

func TestSmallFileRoundTrip(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	before := c.Stats().FreeBlocks
	payload := []byte("Hello, world!")

	r.NoError(c.WriteFile("/", "hello.txt", payload))

	got, err := c.ReadFile("/", "hello.txt")
	r.NoError(err)
	r.Equal(payload, got)

	// fits in the metadata block, so exactly one block is consumed
	r.Equal(before-1, c.Stats().FreeBlocks)

	listing, err := c.ReadDirectory("/")
	r.NoError(err)
	r.Equal([]FileInfo{{Name: "hello.txt", Size: len(payload)}}, listing.Files)
}

func TestOverflowFileRoundTrip(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	before := c.Stats().FreeBlocks
	payload := bytes.Repeat([]byte("x"), 10000)

	r.NoError(c.WriteFile("/", "big.bin", payload))

	// 10000 bytes: 3584 local, the rest chained across two data blocks
	r.Equal(before-3, c.Stats().FreeBlocks)

	got, err := c.ReadFile("/", "big.bin")
	r.NoError(err)
	r.Equal(payload, got)
}

func TestRangedRead(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	payload := make([]byte, 2*dataCapacity+977)
	for i := range payload {
		payload[i] = byte(i)
	}
	r.NoError(c.WriteFile("/", "ranged.bin", payload))

	for _, span := range [][2]int{
		{0, 0},
		{0, 10},
		{0, len(payload)},
		{localCapacity - 3, 7},
		{localCapacity + dataCapacity - 1, 2},
		{len(payload) - 1, 1},
		{len(payload), 0},
	} {
		start, count := span[0], span[1]
		got, err := c.ReadFileRange("/", "ranged.bin", start, count)
		r.NoError(err)
		r.Equal(payload[start:start+count], got)
	}

	for _, span := range [][2]int{
		{-1, 1},
		{0, len(payload) + 1},
		{len(payload) + 1, 0},
		{len(payload), 1},
		{5, -1},
	} {
		_, err := c.ReadFileRange("/", "ranged.bin", span[0], span[1])
		r.ErrorIs(err, containerfs.ErrOutOfRange)
	}
}

func TestNestedDirectories(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	r.NoError(c.WriteDirectory("/a"))
	r.NoError(c.WriteDirectory("/a/b"))
	r.NoError(c.WriteFile("/a/b", "x.bin", []byte{42}))

	listing, err := c.ReadDirectory("/a/b")
	r.NoError(err)
	r.Empty(listing.Directories)
	r.Equal([]FileInfo{{Name: "x.bin", Size: 1}}, listing.Files)

	listing, err = c.ReadDirectory("/a")
	r.NoError(err)
	r.Equal([]string{"b"}, listing.Directories)
	r.Empty(listing.Files)

	// root sees a exactly once
	listing, err = c.ReadDirectory("")
	r.NoError(err)
	r.Equal([]string{"a"}, listing.Directories)
}

func TestPathResolution(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	r.NoError(c.WriteDirectory("/a"))
	r.NoError(c.WriteFile("/a", "f", []byte("data")))

	// "", "/" and "." all mean the root
	for _, root := range []string{"", "/", ".", "//", "/./"} {
		listing, err := c.ReadDirectory(root)
		r.NoError(err)
		r.Equal([]string{"a"}, listing.Directories)
	}

	_, err := c.ReadDirectory("/missing")
	r.ErrorIs(err, containerfs.ErrNotFound)

	// the resolver never descends into files
	_, err = c.ReadDirectory("/a/f")
	r.ErrorIs(err, containerfs.ErrNotFound)

	_, err = c.ReadFile("/a", "missing")
	r.ErrorIs(err, containerfs.ErrFileNotFound)

	// a directory name does not resolve as a file
	_, err = c.ReadFile("/", "a")
	r.ErrorIs(err, containerfs.ErrFileNotFound)

	_, err = c.ReadFile("/missing", "f")
	r.ErrorIs(err, containerfs.ErrNotFound)
}

func TestDuplicateNames(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	r.NoError(c.WriteFile("/", "f", []byte("one")))
	r.ErrorIs(c.WriteFile("/", "f", []byte("two")), containerfs.ErrExists)

	r.NoError(c.WriteDirectory("/d"))
	r.ErrorIs(c.WriteDirectory("/d"), containerfs.ErrExists)

	// directory creation rejects any entry of that name
	r.ErrorIs(c.WriteDirectory("/f"), containerfs.ErrExists)
}

func TestCaseInsensitiveFileNames(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	r.NoError(c.WriteFile("/", "Hello.TXT", []byte("hi")))

	got, err := c.ReadFile("/", "hello.txt")
	r.NoError(err)
	r.Equal([]byte("hi"), got)

	r.ErrorIs(c.WriteFile("/", "HELLO.txt", []byte("clash")), containerfs.ErrExists)

	r.NoError(c.DeleteFile("/", " hello.TXT "))
	_, err = c.ReadFile("/", "Hello.TXT")
	r.ErrorIs(err, containerfs.ErrFileNotFound)
}

func TestInvalidNames(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	r.ErrorIs(c.WriteFile("/", "", []byte("x")), containerfs.ErrInvalidParam)
	r.ErrorIs(c.WriteFile("/", string(bytes.Repeat([]byte("n"), containerfs.NameSize+1)), nil), containerfs.ErrInvalidParam)
	r.ErrorIs(c.WriteDirectory("/"), containerfs.ErrInvalidParam)
	r.ErrorIs(c.DeleteDirectory("/"), containerfs.ErrInvalidParam)
}

func TestDeleteDirectory(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	before := c.Stats().FreeBlocks

	r.NoError(c.WriteDirectory("/a"))
	r.NoError(c.WriteFile("/a", "f", []byte("payload")))

	r.ErrorIs(c.DeleteDirectory("/a"), containerfs.ErrNotEmpty)

	r.NoError(c.DeleteFile("/a", "f"))
	r.NoError(c.DeleteDirectory("/a"))

	r.Equal(before, c.Stats().FreeBlocks)

	_, err := c.ReadDirectory("/a")
	r.ErrorIs(err, containerfs.ErrNotFound)
}

func TestDeleteRestoresFreeBlocks(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	payload := bytes.Repeat([]byte("y"), 10000)

	r.NoError(c.WriteFile("/", "f", payload))
	after := c.Stats().FreeBlocks

	r.NoError(c.DeleteFile("/", "f"))
	r.Equal(after+3, c.Stats().FreeBlocks)

	// rewriting the same byte length lands on the same footprint
	r.NoError(c.WriteFile("/", "f", payload))
	r.Equal(after, c.Stats().FreeBlocks)
}

func TestChildListOverflow(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	// 500 children pack to 4000 bytes, past the metadata block's 3584
	const count = 500
	before := c.Stats().FreeBlocks

	for i := 0; i < count; i++ {
		r.NoError(c.WriteFile("/", fmt.Sprintf("f_%d", i), []byte("z")))
	}

	r.Equal(before-count-1, c.Stats().FreeBlocks)

	listing, err := c.ReadDirectory("/")
	r.NoError(err)
	r.Len(listing.Files, count)

	seen := make(map[string]bool, count)
	for _, f := range listing.Files {
		seen[f.Name] = true
	}
	for i := 0; i < count; i++ {
		r.True(seen[fmt.Sprintf("f_%d", i)])
	}

	// shrinking back under the local capacity releases the overflow
	for i := 0; i < count; i++ {
		r.NoError(c.DeleteFile("/", fmt.Sprintf("f_%d", i)))
	}
	r.Equal(before, c.Stats().FreeBlocks)
}

func TestReopen(t *testing.T) {
	r := require.New(t)
	c, filename := newTestContainer(t)

	payload := bytes.Repeat([]byte("p"), 20000)
	r.NoError(c.WriteDirectory("/docs"))
	r.NoError(c.WriteFile("/docs", "f.bin", payload))

	before := c.Stats()
	r.NoError(c.Close())

	c2, err := Open(filename, false)
	r.NoError(err)
	defer c2.Close()

	after := c2.Stats()
	r.Equal(before.FreeBlocks, after.FreeBlocks)
	r.Equal(before.Name, after.Name)
	r.Equal(before.BlockSize, after.BlockSize)
	r.Equal(before.BlockCount, after.BlockCount)
	r.True(before.Created.Equal(after.Created))

	got, err := c2.ReadFile("/docs", "f.bin")
	r.NoError(err)
	r.Equal(payload, got)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.cfs"), false)
	require.Error(t, err)
}

func TestFillToCapacity(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	initial := c.Stats().FreeBlocks

	// one large file takes 4001 blocks, leaving 93 for small files
	const bigBlocks = 4000
	big := make([]byte, localCapacity+bigBlocks*dataCapacity)
	r.NoError(c.WriteFile("/", "big", big))

	remaining := initial - bigBlocks - 1
	r.Equal(remaining, c.Stats().FreeBlocks)

	var written int
	for {
		err := c.WriteFile("/", fmt.Sprintf("f_%d", written), []byte("s"))
		if err != nil {
			r.ErrorIs(err, containerfs.ErrNoSpace)
			break
		}
		written++
	}

	// every remaining block holds exactly one small file
	r.Equal(remaining, written)
	r.Equal(0, c.Stats().FreeBlocks)

	for i := 0; i < written; i++ {
		r.NoError(c.DeleteFile("/", fmt.Sprintf("f_%d", i)))
	}
	r.NoError(c.DeleteFile("/", "big"))

	r.Equal(initial, c.Stats().FreeBlocks)
}

func TestInspect(t *testing.T) {
	r := require.New(t)
	c, _ := newTestContainer(t)

	payload := bytes.Repeat([]byte("q"), 10000)
	r.NoError(c.WriteFile("/", "q.bin", payload))

	desc, err := c.EnumerateBlock(0)
	r.NoError(err)
	r.Contains(desc, "header block")
	r.Contains(desc, "testcontainer")

	desc, err = c.EnumerateBlock(int64(testBlockSize))
	r.NoError(err)
	r.Contains(desc, "directory")

	// the file landed in block 2, its chain right behind it
	desc, err = c.EnumerateBlock(2 * int64(testBlockSize))
	r.NoError(err)
	r.Contains(desc, "file")
	r.Contains(desc, "q.bin")

	desc, err = c.EnumerateBlock(3 * int64(testBlockSize))
	r.NoError(err)
	r.Contains(desc, "data block")

	// an unallocated block has no valid signature
	_, err = c.EnumerateBlock(100 * int64(testBlockSize))
	r.ErrorIs(err, containerfs.ErrMalformed)

	_, err = c.EnumerateBlock(123)
	r.ErrorIs(err, containerfs.ErrInvalidParam)
	_, err = c.EnumerateBlock(-int64(testBlockSize))
	r.ErrorIs(err, containerfs.ErrInvalidParam)

	raw, err := c.ReadRawBlock(0)
	r.NoError(err)
	r.Len(raw, testBlockSize)
	r.Equal([]byte{1, 1, 1, 1}, raw[0:4])
}
