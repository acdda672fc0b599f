package market

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Injected so session and reset
// decisions are testable without the wall clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ExchangeTimezone fixes every session and day-boundary decision to US
// Eastern, independent of the host or client locale.
const ExchangeTimezone = "America/New_York"

// DateKeyFormat is the exchange-calendar date used as the reset and
// archive key.
const DateKeyFormat = "2006-01-02"

const (
	openHour   = 9
	openMinute = 30
	closeHour  = 16
)

// Session answers trading-calendar questions in the exchange timezone.
type Session struct {
	loc   *time.Location
	clock Clock
}

// NewSession loads the exchange timezone and binds the given clock.
func NewSession(clock Clock) (*Session, error) {
	loc, err := time.LoadLocation(ExchangeTimezone)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone: %w", err)
	}
	return &Session{loc: loc, clock: clock}, nil
}

// Now returns the current instant from the injected clock.
func (s *Session) Now() time.Time { return s.clock.Now() }

// Local converts t to the exchange timezone.
func (s *Session) Local(t time.Time) time.Time { return t.In(s.loc) }

// EquitiesOpenAt reports whether the equities session is open at t:
// Monday to Friday, [09:30, 16:00) exchange-local. The window is
// half-open; 09:30 trades, 16:00 does not.
func (s *Session) EquitiesOpenAt(t time.Time) bool {
	et := t.In(s.loc)
	if isWeekendDay(et.Weekday()) {
		return false
	}
	h, m := et.Hour(), et.Minute()
	if h < openHour || (h == openHour && m < openMinute) {
		return false
	}
	return h < closeHour
}

// EquitiesOpen reports whether the equities session is open right now.
func (s *Session) EquitiesOpen() bool { return s.EquitiesOpenAt(s.clock.Now()) }

// WeekendAt reports whether t falls on a Saturday or Sunday in the
// exchange timezone.
func (s *Session) WeekendAt(t time.Time) bool {
	return isWeekendDay(t.In(s.loc).Weekday())
}

// Weekend reports whether it is currently the weekend in the exchange
// timezone.
func (s *Session) Weekend() bool { return s.WeekendAt(s.clock.Now()) }

// DateAt returns the exchange-calendar date of t.
func (s *Session) DateAt(t time.Time) string {
	return t.In(s.loc).Format(DateKeyFormat)
}

// Date returns today's exchange-calendar date.
func (s *Session) Date() string { return s.DateAt(s.clock.Now()) }

func isWeekendDay(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
