// Package progress renders per-file transfer progress on a terminal.
//
// A Terminal owns the output stream. Status lines written through it while a
// bar is visible clear the bar first and redraw it afterwards, so log output
// and progress never share a line.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/utils"
	"golang.org/x/term"
)

const (
	clearLine    = "\r\x1b[2K"
	defaultWidth = 80
	minBarWidth  = 10
)

// Reporter creates a Tracker for each transfer
type Reporter interface {
	Start(name string, total int64) Tracker
}

// Tracker receives byte counts for one transfer
type Tracker interface {
	Add(n int64)
	Finish()
}

// Terminal serialises writes to out and tracks the visible bar
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	width       int
	active      *Bar
}

// NewTerminal wraps out. Bars are only drawn when out is a TTY.
func NewTerminal(out io.Writer) *Terminal {
	t := &Terminal{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			t.interactive = true
			if w, _, err := term.GetSize(fd); err == nil && w > 0 {
				t.width = w
			}
		}
	}
	return t
}

// Interactive reports whether bars will be drawn
func (t *Terminal) Interactive() bool {
	return t.interactive
}

// Write implements io.Writer for log sinks sharing the terminal
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		if _, err := io.WriteString(t.out, clearLine); err != nil {
			return 0, err
		}
	}
	n, err := t.out.Write(p)
	if err != nil {
		return n, err
	}
	if t.active != nil {
		t.active.drawLocked()
	}
	return n, nil
}

// Start begins a bar for name. On a non-interactive terminal the returned
// tracker only counts bytes.
func (t *Terminal) Start(name string, total int64) Tracker {
	if !t.interactive {
		return &counter{}
	}
	bar := &Bar{term: t, name: name, total: total, now: time.Now}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = bar
	bar.drawLocked()
	return bar
}

// Bar is one transfer's progress line
type Bar struct {
	term     *Terminal
	name     string
	total    int64
	current  int64
	lastDraw time.Time
	finished bool
	now      func() time.Time
}

// Add advances the bar by n bytes, redrawing at most every ProgressInterval
func (b *Bar) Add(n int64) {
	b.term.mu.Lock()
	defer b.term.mu.Unlock()

	b.current += n
	if b.finished {
		return
	}
	if b.now().Sub(b.lastDraw) >= utils.ProgressInterval || b.current == b.total {
		b.drawLocked()
	}
}

// Finish erases the bar from the terminal
func (b *Bar) Finish() {
	b.term.mu.Lock()
	defer b.term.mu.Unlock()

	if b.finished {
		return
	}
	b.finished = true
	if b.term.active == b {
		b.term.active = nil
	}
	io.WriteString(b.term.out, clearLine)
}

func (b *Bar) drawLocked() {
	b.lastDraw = b.now()
	io.WriteString(b.term.out, clearLine+b.render(b.term.width))
}

// render formats the bar to fit width columns
func (b *Bar) render(width int) string {
	if b.total <= 0 {
		return truncate(fmt.Sprintf("%s %s", b.name, utils.FormatSize(b.current)), width)
	}

	current := b.current
	if current > b.total {
		current = b.total
	}
	percent := int(current * 100 / b.total)
	suffix := fmt.Sprintf(" %3d%% %s / %s", percent, utils.FormatSize(current), utils.FormatSize(b.total))

	barWidth := width - len(suffix) - 3
	label := ""
	if barWidth-minBarWidth > 10 {
		labelWidth := (barWidth - minBarWidth) / 2
		label = truncate(b.name, labelWidth) + " "
		barWidth -= len(label)
	}
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	filled := int(int64(barWidth) * current / b.total)
	var sb strings.Builder
	sb.WriteString(label)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	if filled < barWidth {
		sb.WriteByte('>')
		sb.WriteString(strings.Repeat(" ", barWidth-filled-1))
	}
	sb.WriteByte(']')
	sb.WriteString(suffix)
	return sb.String()
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}

// counter is the Tracker used when nothing is drawn
type counter struct {
	n int64
}

func (c *counter) Add(n int64) { c.n += n }
func (c *counter) Finish()     {}

// Discard is a Reporter that draws nothing
var Discard Reporter = discard{}

type discard struct{}

func (discard) Start(string, int64) Tracker { return &counter{} }
