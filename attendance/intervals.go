package attendance

import (
	"sort"
	"time"

	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// INTERVAL PAIRING
// =============================================================================

// Summary is the result of walking one day's punches.
type Summary struct {
	FirstCheckIn *time.Time
	LastCheckOut *time.Time

	Work  time.Duration
	Break time.Duration

	// OpenSince is set when the day ends on an IN with no later OUT. The open
	// segment is not counted as work; it is surfaced so callers can flag it.
	OpenSince *time.Time
}

func (s Summary) WorkMinutes() int  { return generic.WholeMinutes(s.Work) }
func (s Summary) BreakMinutes() int { return generic.WholeMinutes(s.Break) }

// SortPunches orders punches by punch time, keeping input order on ties.
func SortPunches(punches []PunchEvent) []PunchEvent {
	sorted := make([]PunchEvent, len(punches))
	copy(sorted, punches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PunchTime.Before(sorted[j].PunchTime)
	})
	return sorted
}

// PairIntervals walks punches (sorted ascending) and pairs them:
//
//	IN  ... OUT  closes a work interval
//	OUT ... IN   closes a break interval
//
// A repeated IN re-anchors the open work segment and a repeated OUT
// re-anchors the open break segment; the earlier punch of the pair is
// superseded. A trailing IN closes nothing. Interval boundaries are taken
// at minute resolution so work and break add up to the span they cover.
func PairIntervals(punches []PunchEvent) Summary {
	var (
		s       Summary
		openIn  *time.Time
		openOut *time.Time
		lastIn  time.Time
	)

	for i := range punches {
		at := punches[i].PunchTime
		mark := at.Truncate(time.Minute)
		switch punches[i].PunchType {
		case PunchIn:
			if s.FirstCheckIn == nil || at.Before(*s.FirstCheckIn) {
				s.FirstCheckIn = &at
			}
			if openOut != nil {
				s.Break += mark.Sub(*openOut)
				openOut = nil
			}
			openIn = &mark
			lastIn = at

		case PunchOut:
			if s.LastCheckOut == nil || at.After(*s.LastCheckOut) {
				s.LastCheckOut = &at
			}
			if openIn != nil {
				s.Work += mark.Sub(*openIn)
				openIn = nil
			}
			openOut = &mark
		}
	}

	if openIn != nil {
		s.OpenSince = &lastIn
	}
	return s
}
