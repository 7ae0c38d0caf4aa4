package msg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevNoColor := Output, color.NoColor
	Output, color.NoColor = &buf, true
	t.Cleanup(func() { Output, color.NoColor = prevOut, prevNoColor })
	return &buf
}

func TestLevels(t *testing.T) {
	buf := captureOutput(t)
	Info("cloning %s", "hal")
	Warn("no deps")
	Error("bad %d", 1)
	assert.Equal(t, "info: cloning hal\nwarn: no deps\nerror: bad 1\n", buf.String())
}

func TestFatalExits(t *testing.T) {
	buf := captureOutput(t)
	code := -1
	prevExit := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = prevExit })

	Fatal("boom")
	assert.Equal(t, 1, code)
	assert.Equal(t, "fatal: boom\n", buf.String())
}

func TestIndentWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &IndentWriter{Indent: "  ", W: &buf}
	w.Write([]byte("Counting objects\nCompress"))
	w.Write([]byte("ing\rDone\n"))
	assert.Equal(t, "  Counting objects\n  Compressing\r  Done\n", buf.String())
}

func TestProgressBarFinish(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(4096, 2, &buf)
	pb.Write(make([]byte, 4096))
	pb.Finish()
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "  ["+strings.Repeat("=", barWidth)+"] 100% 4.0 KiB / 4.0 KiB in ")
}

func TestProgressBarUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(-1, 0, &buf)
	pb.Write(make([]byte, 1536))
	pb.Finish()
	assert.Contains(t, buf.String(), "\r1.5 KiB in ")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "2.5 MiB", humanBytes(5*1024*1024/2))
}
