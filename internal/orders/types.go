package orders

import (
	"fmt"
	"time"
)

// Order statuses
const (
	StatusSubmitted = "OrderSubmitted"
	StatusAccepted  = "orderAccepted"
)

// DateLayout is the format of DeliveryDate.
const DateLayout = "2006-01-02"

// Order represents the item stored in the orders table and the body of ordering queue messages.
type Order struct {
	OrderID          int64  `json:"orderId" dynamodbav:"orderId"` // PK
	Product          string `json:"order" dynamodbav:"order"`
	Timestamp        string `json:"timestamp" dynamodbav:"timestamp"`
	Source           string `json:"source" dynamodbav:"source"`
	CustomerName     string `json:"customerName" dynamodbav:"customerName"`
	CustomerEmail    string `json:"customerEmail" dynamodbav:"customerEmail"`
	DeliveryDate     string `json:"deliveryDate" dynamodbav:"deliveryDate"` // YYYY-MM-DD
	OrderStatus      string `json:"orderStatus" dynamodbav:"orderStatus"`
	LockerID         *int   `json:"lockerId,omitempty" dynamodbav:"lockerId,omitempty"`
	UpdatedTimestamp string `json:"updatedTimestamp,omitempty" dynamodbav:"updatedTimestamp,omitempty"`
}

// Accepted reports whether the order already went through acceptance.
func (o Order) Accepted() bool {
	return o.LockerID != nil || o.UpdatedTimestamp != ""
}

// Delivery returns midnight of the delivery date in loc.
func (o Order) Delivery(loc *time.Location) (time.Time, error) {
	return ParseDeliveryDate(o.DeliveryDate, loc)
}

// ParseDeliveryDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDeliveryDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse delivery date %q: %w", s, err)
	}
	return t, nil
}

// DateOf formats the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
