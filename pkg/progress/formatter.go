package progress

import (
	"fmt"
	"math"
	"strings"
)

const indeterminateLabel = "Working..."

// Formatter renders records for console display. It holds no state besides
// its appearance settings and is safe for concurrent use.
type Formatter struct {
	Width int
	Fill  string
	Empty string
}

// DefaultFormatter returns a 40 column block-character formatter
func DefaultFormatter() Formatter {
	return Formatter{
		Width: 40,
		Fill:  "█",
		Empty: "░",
	}
}

// ProgressBar renders a bracketed bar followed by the percentage, or a
// fixed-width placeholder for indeterminate operations.
func (f Formatter) ProgressBar(r Record) string {
	width := f.Width
	if width < 0 {
		width = 0
	}

	if r.Total <= 0 {
		return fmt.Sprintf("[%-*s]", width, indeterminateLabel)
	}

	pct := r.ProgressPercentage()
	filled := int(math.Floor(float64(width) * pct / 100))
	bar := strings.Repeat(f.Fill, filled) + strings.Repeat(f.Empty, width-filled)

	return fmt.Sprintf("[%s] %5.1f%%", bar, pct)
}

// TimeEstimate renders the elapsed time and, when known, the remaining time
func (f Formatter) TimeEstimate(r Record) string {
	elapsed := fmt.Sprintf("Elapsed: %.1fs", r.Elapsed.Seconds())
	if r.EstimatedRemaining == nil || *r.EstimatedRemaining == 0 {
		return elapsed
	}
	return fmt.Sprintf("%s, Remaining: ~%.1fs", elapsed, r.EstimatedRemaining.Seconds())
}

// OperationStatus renders "name: message", optionally with the bar, and with
// timing information while the operation is running.
func (f Formatter) OperationStatus(r Record, includeBar bool) string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(": ")
	b.WriteString(r.Message)

	if includeBar && r.Total > 0 {
		b.WriteString(" ")
		b.WriteString(f.ProgressBar(r))
	}

	if r.IsRunning() {
		b.WriteString(" (")
		b.WriteString(f.TimeEstimate(r))
		b.WriteString(")")
	}

	return b.String()
}
