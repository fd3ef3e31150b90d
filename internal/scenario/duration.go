package scenario

import (
	"strconv"
	"time"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// One virtual tick corresponds to one millisecond in duration strings.
const tickMillis = time.Millisecond

// ParseTicks converts a duration string to virtual ticks. Bare integers
// are ticks ("100"); otherwise Go duration syntax is accepted ("10ms",
// "2s") and converted at one tick per millisecond. Sub-millisecond
// durations round down; negative durations are rejected.
func ParseTicks(s string) (int64, error) {
	if s == "" {
		return 0, errs.New(errs.KindValidation, "empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errs.Newf(errs.KindValidation, "negative duration %q", s)
		}
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errs.Newf(errs.KindValidation, "invalid duration %q: %v", s, err)
	}
	if d < 0 {
		return 0, errs.Newf(errs.KindValidation, "negative duration %q", s)
	}
	return int64(d / tickMillis), nil
}
