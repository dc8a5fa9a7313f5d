package interfaces

import "time"

// EodSummarizer turns a day's rebalance journal into a per-symbol CSV
// report after market close.
type EodSummarizer interface {
	// SummarizeDay writes the CSV for the given IST date and returns its
	// path. An empty path with a nil error means no trades that day.
	SummarizeDay(t time.Time) (string, error)

	// SummarizeToday is SummarizeDay for the current IST date.
	SummarizeToday() (string, error)

	// ShouldRunNow reports whether the market has closed and today's
	// report has not been written yet.
	ShouldRunNow() (bool, string)
}
