package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/containerfs/container"
)

func TestUsage(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	c, err := container.Create(filepath.Join(dir, "c.cfs"), "report-test", 4096, 4096, false)
	r.NoError(err)
	defer c.Close()

	r.NoError(c.WriteDirectory("/a"))
	r.NoError(c.WriteFile("/a", "f.bin", make([]byte, 10000)))

	out := filepath.Join(dir, "usage.png")
	r.NoError(Usage(c, out))

	info, err := os.Stat(out)
	r.NoError(err)
	r.NotZero(info.Size())
}
