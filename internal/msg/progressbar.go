package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	barWidth      = 30
	printInterval = 100 * time.Millisecond
)

// ProgressBar reports how much of an archive dependency has been downloaded.
// It is an io.Writer meant to sit behind an io.TeeReader. A Total of zero or
// less means the size is unknown and only the byte count is shown.
type ProgressBar struct {
	Total   int64
	Current int64
	Indent  int
	W       io.Writer

	start     time.Time
	lastPrint time.Time
	lastLen   int
}

func NewProgressBar(total int64, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{Total: total, Indent: indent, W: w, start: time.Now()}
}

func (pb *ProgressBar) Write(p []byte) (int, error) {
	pb.Current += int64(len(p))
	if now := time.Now(); now.Sub(pb.lastPrint) >= printInterval {
		pb.lastPrint = now
		pb.render()
	}
	return len(p), nil
}

// humanBytes formats n with a binary unit, e.g. 1.5 MiB
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (pb *ProgressBar) line() string {
	indent := strings.Repeat(" ", pb.Indent)
	if pb.Total <= 0 {
		return indent + humanBytes(pb.Current)
	}
	done := min(pb.Current, pb.Total)
	filled := int(done * barWidth / pb.Total)
	return fmt.Sprintf("%s[%s%s] %3d%% %s / %s",
		indent,
		strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled),
		done*100/pb.Total,
		humanBytes(done), humanBytes(pb.Total))
}

// render redraws the line in place, blanking leftovers of a longer previous line
func (pb *ProgressBar) render() {
	line := pb.line()
	pad := max(pb.lastLen-len(line), 0)
	pb.lastLen = len(line)
	fmt.Fprintf(pb.W, "\r%s%s", line, strings.Repeat(" ", pad))
}

// Finish draws the final state and ends the line
func (pb *ProgressBar) Finish() {
	if pb.Total > 0 && pb.Current < pb.Total {
		pb.Total = pb.Current
	}
	pb.render()
	fmt.Fprintf(pb.W, " in %s\n", time.Since(pb.start).Round(time.Millisecond))
}
