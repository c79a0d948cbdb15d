package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActiveLogger(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	l := NewWithWriter(true, &buf)

	l.Info("opened")
	l.Warning("slow")
	l.Error("broken")

	out := buf.String()
	r.Contains(out, "INFO: opened")
	r.Contains(out, "WARNING: slow")
	r.Contains(out, "ERROR: broken")
}

func TestInactiveLogger(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	l := NewWithWriter(false, &buf)

	l.Info("quiet")
	l.Warning("quiet")
	l.Error("quiet")

	r.Empty(buf.String())
}
