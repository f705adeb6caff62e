package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

// Spinner drives a yacspin terminal spinner. Announcements are printed above the spinner line.
type Spinner struct {
	spinner *yacspin.Spinner
	mu      sync.Mutex
	failed  bool
}

// NewSpinner creates and starts a spinner on stdout.
func NewSpinner() (*Spinner, error) {
	settings := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopFailCharacter: "✗",
		StopCharacter:     "✓",
	}

	spinner, err := yacspin.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spinner: %w", err)
	}
	return &Spinner{spinner: spinner}, nil
}

func (s *Spinner) ReportProgress(percent int) {
	if percent < 0 {
		return
	}
	s.spinner.Message(fmt.Sprintf(" %d%%", percent))
}

func (s *Spinner) ClearProgress() {
	s.spinner.Message("")
}

func (s *Spinner) Announce(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.spinner.Pause()
	fmt.Fprintln(os.Stdout, message)
	_ = s.spinner.Unpause()
}

// Fail marks the run as failed so Close stops with the failure glyph and message.
func (s *Spinner) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	s.spinner.StopFailMessage(" " + message)
}

// Succeed sets the message shown when the spinner stops successfully.
func (s *Spinner) Succeed(message string) {
	s.spinner.StopMessage(" " + message)
}

func (s *Spinner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return s.spinner.StopFail()
	}
	return s.spinner.Stop()
}

// FileProgress matches option.ExtractionProgressCallback and shows the file being written.
func (s *Spinner) FileProgress(currentFilename string, bytesTransferred int64, totalBytes int64, currentFileNumber int, totalFileCount int) {
	s.spinner.Message(FormatFileProgress(terminalWidth(), currentFilename, bytesTransferred, totalBytes, currentFileNumber, totalFileCount))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return width
}

// FormatFileProgress renders a single progress line that fits in width columns. A totalFileCount of zero
// means the number of files is not known in advance.
func FormatFileProgress(width int, currentFilename string, bytesTransferred int64, totalBytes int64, currentFileNumber int, totalFileCount int) string {
	counter := fmt.Sprintf(" [%d]", currentFileNumber)
	if totalFileCount > 0 {
		counter = fmt.Sprintf(" [%d/%d]", currentFileNumber, totalFileCount)
	}
	percent := 100.0
	if totalBytes > 0 {
		percent = float64(bytesTransferred) / float64(totalBytes) * 100
	}
	suffix := fmt.Sprintf(" - %.2f%%", percent)

	available := width - len(counter) - len(suffix) - 6
	if available < 10 {
		available = 10
	}
	return fmt.Sprintf("%s %s%s", counter, truncateString(currentFilename, available), suffix)
}

// truncateString keeps the tail of input, prefixed with "...", when it is longer than maxLength.
func truncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	if maxLength <= 3 {
		return input[len(input)-maxLength:]
	}
	return "..." + input[len(input)-(maxLength-3):]
}
