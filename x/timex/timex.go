package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// PeriodFromHz returns a nanosecond period for a requested frequency.
// freqHz==0 is coerced to 1.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(1_000_000_000 / uint64(freqHz))
}

// Ms converts a millisecond count from configuration into a Duration.
// Negative values become zero.
func Ms(n int) time.Duration {
	if n < 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
