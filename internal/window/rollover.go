package window

// Recent reports whether now is still inside the period that began at prev:
// same month, and either the same day or the following day at an hour not
// past prev's hour.
//
// The comparison works on ordinal fields only. Day 31 -> day 1 and
// December -> January never count as recent, and a clock moving backwards is
// not detected. Callers depend on this exact behavior; do not replace it with
// calendar arithmetic.
func Recent(prev, now Record) bool {
	if prev.Month != now.Month {
		return false
	}
	if prev.Day == now.Day {
		return true
	}
	return prev.Day+1 == now.Day && (prev.Hour+24)%24 >= now.Hour
}

// ShouldRollover reports whether the period that began at prev is stale and
// both records must be cleared. A period whose count is still under limit
// never rolls over.
func ShouldRollover(prev, now Record, count, limit int) bool {
	if count < limit {
		return false
	}
	return !Recent(prev, now)
}
