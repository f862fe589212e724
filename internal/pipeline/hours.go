package pipeline

import (
	"fmt"
	"time"
)

// MarketGate answers whether the exchange is trading at a given instant:
// weekdays between open and close in the exchange timezone.
type MarketGate struct {
	loc       *time.Location
	openMins  int
	closeMins int
}

// NewMarketGate parses "HH:MM" open/close times in the named timezone.
func NewMarketGate(timezone, open, close string) (*MarketGate, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	openMins, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeMins, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	return &MarketGate{loc: loc, openMins: openMins, closeMins: closeMins}, nil
}

// Open reports whether t falls inside trading hours. The close minute is
// inclusive, matching the final bar of the session.
func (g *MarketGate) Open(t time.Time) bool {
	local := t.In(g.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= g.openMins && mins <= g.closeMins
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
