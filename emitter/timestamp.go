package emitter

import (
	"fmt"
	"time"

	"github.com/cvsfastexport/cvsfastexport/mark"
)

// formatTimestamp renders ts (Unix seconds) in the given IANA zone as
// "<seconds> <±HHMM>", the fast-import committer date format. This
// replaces the reference tool's TZ-environment-mutation hack (Design
// Notes §9, "Timezone side-effect for formatting") with a pure
// zone-database lookup; the textual output is unchanged.
func formatTimestamp(ts int64, tz string) (string, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	t := time.Unix(ts, 0).In(loc)
	_, offsetSeconds := t.Zone()
	return fmt.Sprintf("%d %s", ts, offsetString(offsetSeconds)), nil
}

func offsetString(offsetSeconds int) string {
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours := offsetSeconds / 3600
	minutes := (offsetSeconds % 3600) / 60
	return fmt.Sprintf("%s%02d%02d", sign, hours, minutes)
}

// forceDateEpoch is the first synthetic timestamp force_dates uses,
// chosen comfortably after the Unix epoch so no forced commit date is
// ever negative regardless of RCS_EPOCH offset.
const forceDateEpoch int64 = 946684800 // 2000-01-01T00:00:00Z

// forcedTimestamp derives a synthetic, strictly monotonic timestamp
// from a commit's mark number when force_dates is set, avoiding
// pre-epoch values entirely (spec §4.6 step 3).
func forcedTimestamp(m mark.Mark) int64 {
	return forceDateEpoch + int64(m)
}
