package analyze

import (
	"fmt"
	"strings"
	"time"
)

// BackupHour is the UTC hour at which a day's influx export is cut.
const BackupHour = 11

// Window is an inclusive timestamp range in nanoseconds. The zero Window
// admits everything.
type Window struct {
	Start int64
	End   int64
}

// DayWindow parses a day argument such as "2019-07-01T11_2019-07-02T11" and
// returns the 24 hours starting at BackupHour UTC on the first date. Only
// the date before the first 'T' is read.
func DayWindow(date string) (Window, error) {
	day, _, _ := strings.Cut(date, "T")
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return Window{}, fmt.Errorf("invalid date %q (format as 2019-07-01T11_2019-07-02T11): %w", date, err)
	}
	start := t.Add(BackupHour * time.Hour)
	return Window{
		Start: start.UnixNano(),
		End:   start.Add(24 * time.Hour).UnixNano(),
	}, nil
}

// IsZero reports whether w is unbounded.
func (w Window) IsZero() bool { return w.Start == 0 && w.End == 0 }

// Contains reports whether ts falls in w.
func (w Window) Contains(ts int64) bool {
	if w.IsZero() {
		return true
	}
	return ts >= w.Start && ts <= w.End
}

func (w Window) String() string {
	if w.IsZero() {
		return "unbounded"
	}
	return time.Unix(0, w.Start).UTC().Format(time.RFC3339) + "/" + time.Unix(0, w.End).UTC().Format(time.RFC3339)
}
