package domain

import "time"

// OfferPeriod is the rolling window an offer message's sends are spread over.
const OfferPeriod = 14 * 24 * time.Hour

// OfferMessage is a promotional broadcast delivered to every known user a
// fixed number of times per period.
type OfferMessage struct {
	ID        int64     `db:"id"`
	Content   string    `db:"content"`
	PerPeriod int       `db:"per_period"`
	CreatedAt time.Time `db:"created_at"`
}

// SendingTimes spreads the sends evenly over the period starting at
// periodStart. Each send lands in the middle of its slot, truncated to the
// hour, so the hourly broadcast tick can match it exactly.
func (o OfferMessage) SendingTimes(periodStart time.Time) []time.Time {
	if o.PerPeriod <= 0 {
		return nil
	}
	step := OfferPeriod / time.Duration(o.PerPeriod)
	times := make([]time.Time, 0, o.PerPeriod)
	for i := 1; i <= o.PerPeriod; i++ {
		t := periodStart.Add(time.Duration(i)*step - step/2)
		times = append(times, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()))
	}
	return times
}

// DueAt reports whether one of the sending times falls inside now's hour.
func (o OfferMessage) DueAt(periodStart, now time.Time) bool {
	for _, t := range o.SendingTimes(periodStart) {
		if t.Year() == now.Year() && t.YearDay() == now.YearDay() && t.Hour() == now.Hour() {
			return true
		}
	}
	return false
}
