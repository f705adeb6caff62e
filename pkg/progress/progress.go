package progress

import (
	"fmt"
	"io"
	"sync"
)

// Annunciator receives liveness and status notifications from long running extractions.
type Annunciator interface {
	// ReportProgress shows a busy indicator. A negative percent means the amount of work is unknown.
	ReportProgress(percent int)
	// ClearProgress removes any busy indicator from the output.
	ClearProgress()
	// Announce emits a status line.
	Announce(message string)
	Close() error
}

// Null discards every notification.
type Null struct{}

func (Null) ReportProgress(int) {}
func (Null) ClearProgress() {}
func (Null) Announce(string) {}
func (Null) Close() error { return nil }

var busyGlyphs = []byte{'|', '/', '-', '\\'}

// Console writes a rotating busy glyph and announcements to a writer, typically a terminal.
type Console struct {
	w     io.Writer
	mu    sync.Mutex
	phase int
	busy  bool
}

// NewConsole returns a Console annunciator writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) ReportProgress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent < 0 {
		fmt.Fprintf(c.w, "\r%c", busyGlyphs[c.phase%len(busyGlyphs)])
		c.phase++
	} else {
		fmt.Fprintf(c.w, "\r%3d%%", percent)
	}
	c.busy = true
}

func (c *Console) ClearProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Console) clear() {
	if c.busy {
		fmt.Fprint(c.w, "\r    \r")
		c.busy = false
	}
}

func (c *Console) Announce(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
	fmt.Fprintln(c.w, message)
}

func (c *Console) Close() error {
	c.ClearProgress()
	return nil
}
