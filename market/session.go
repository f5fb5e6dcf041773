package market

import (
	"fmt"
	"time"
)

// Session is a single exchange's regular trading calendar: weekdays
// between Open and Close in Location, minus Holidays.
type Session struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	// Holidays are dates (YYYY-MM-DD) in Location with no session.
	Holidays map[string]bool
	// AlwaysOpen disables the calendar entirely.
	AlwaysOpen bool
}

// NYSE is the default regular session, 09:30-16:00 America/New_York.
func NYSE() Session {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Session{Location: loc, OpenHour: 9, OpenMinute: 30, CloseHour: 16}
}

// ParseSession builds a Session from config strings. open and close use
// "15:04" layout, holidays "2006-01-02".
func ParseSession(tz, open, close string, holidays []string, alwaysOpen bool) (Session, error) {
	s := Session{AlwaysOpen: alwaysOpen, Holidays: make(map[string]bool)}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("session timezone %q: %w", tz, err)
	}
	s.Location = loc

	o, err := time.Parse("15:04", open)
	if err != nil {
		return Session{}, fmt.Errorf("session open %q: %w", open, err)
	}
	c, err := time.Parse("15:04", close)
	if err != nil {
		return Session{}, fmt.Errorf("session close %q: %w", close, err)
	}
	if !c.After(o) {
		return Session{}, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	s.OpenHour, s.OpenMinute = o.Hour(), o.Minute()
	s.CloseHour, s.CloseMinute = c.Hour(), c.Minute()

	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return Session{}, fmt.Errorf("session holiday %q: %w", h, err)
		}
		s.Holidays[h] = true
	}
	return s, nil
}

func (s Session) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Bounds returns the open and close instants of the session day holding t.
func (s Session) Bounds(t time.Time) (open, close time.Time) {
	lt := t.In(s.location())
	y, m, d := lt.Date()
	open = time.Date(y, m, d, s.OpenHour, s.OpenMinute, 0, 0, s.location())
	close = time.Date(y, m, d, s.CloseHour, s.CloseMinute, 0, 0, s.location())
	return open, close
}

// IsOpen reports whether t falls inside a session. The interval is
// [open, close).
func (s Session) IsOpen(t time.Time) bool {
	if s.AlwaysOpen {
		return true
	}
	lt := t.In(s.location())
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if s.Holidays[lt.Format("2006-01-02")] {
		return false
	}
	open, close := s.Bounds(lt)
	return !lt.Before(open) && lt.Before(close)
}
