package port

import "time"

// Sink receives rendered portfolio summary output.
type Sink interface {
	// WriteSnapshot appends one timestamped summary block.
	WriteSnapshot(ts time.Time, line string) error
	NewLine() error
}
