package ledger

// NeedsReset is the pure daily-reset decision: a portfolio resets when
// the exchange date has moved past its last reset AND the current date
// is a trading weekday. A date change over the weekend does not reset;
// the reset fires on the next weekday access instead, so a player who
// last traded Friday keeps Friday's book through Sunday.
func NeedsReset(lastResetDate, today string, weekday bool) bool {
	return lastResetDate != today && weekday
}
