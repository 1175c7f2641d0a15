package processor

import (
	"time"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
)

// DefaultThreshold is how long before delivery an order is handled as a same-day order.
const DefaultThreshold = 24 * time.Hour

// Decision is the branch an order takes.
type Decision int

const (
	SameDay Decision = iota
	Future
	Overdue
)

func (d Decision) String() string {
	switch d {
	case SameDay:
		return "same-day"
	case Future:
		return "future"
	case Overdue:
		return "overdue"
	}
	return "unknown"
}

// Classify compares the delivery date with the calendar day of now in loc. Time of day is ignored.
func Classify(deliveryDate string, now time.Time, loc *time.Location) (Decision, error) {
	delivery, err := orders.ParseDeliveryDate(deliveryDate, loc)
	if err != nil {
		return 0, err
	}
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch {
	case delivery.Equal(today):
		return SameDay, nil
	case delivery.After(today):
		return Future, nil
	default:
		return Overdue, nil
	}
}

// RequeueDelay is the time until the order enters the threshold window before its delivery date.
// Inside the window it is the time until the delivery day starts, less one second, so the
// message waits instead of cycling through the queue. Never negative; the queue clamps it
// further to its own maximum.
func RequeueDelay(delivery, now time.Time, threshold time.Duration) time.Duration {
	if d := delivery.Sub(now) - threshold; d > 0 {
		return d
	}
	d := delivery.Sub(now) - time.Second
	if d < 0 {
		return 0
	}
	return d
}
