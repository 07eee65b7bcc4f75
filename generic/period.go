package generic

// =============================================================================
// PERIOD - Validity window (policy effective ranges)
// =============================================================================

// Period is an inclusive date range. A zero End means the period is open
// ended (still in force).
type Period struct {
	Start TimePoint
	End   TimePoint
}

// IsOpenEnded reports whether the period has no end date.
func (p Period) IsOpenEnded() bool { return p.End.IsZero() }

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t TimePoint) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	return p.IsOpenEnded() || t.BeforeOrEqual(p.End)
}

// Validate rejects periods whose end is before their start.
func (p Period) Validate() error {
	if !p.IsOpenEnded() && !p.Start.IsZero() && p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) String() string {
	end := "open"
	if !p.IsOpenEnded() {
		end = p.End.String()
	}
	return "[" + p.Start.String() + ", " + end + "]"
}
