package kite

import (
	"context"
	"time"
)

// istZone is UTC+5:30 (19800 seconds).
var istZone = time.FixedZone("IST", 19800)

// NSE equity session, minutes from midnight IST.
const (
	sessionOpenMinute  = 9*60 + 15  // 09:15
	sessionCloseMinute = 15*60 + 30 // 15:30
)

// IsMarketOpen reports whether the NSE equity session is in progress. Kite
// exposes no market-clock endpoint, so this follows the exchange calendar
// hours; exchange holidays are not accounted for.
func (k *Kite) IsMarketOpen(ctx context.Context) (bool, error) {
	return isSessionOpen(time.Now()), nil
}

func isSessionOpen(t time.Time) bool {
	ist := t.In(istZone)
	switch ist.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := ist.Hour()*60 + ist.Minute()
	return minute >= sessionOpenMinute && minute < sessionCloseMinute
}
