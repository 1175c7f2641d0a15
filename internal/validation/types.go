package validation

// SubmitOrderRequest is the payload for POST /orders
type SubmitOrderRequest struct {
	Product       string `json:"order" validate:"required,max=64"`                     // product name, e.g. donut-3
	Source        string `json:"source" validate:"required,order_source"`              // partner the order came from
	CustomerName  string `json:"customerName" validate:"required,max=128"`             // pickup name
	CustomerEmail string `json:"customerEmail" validate:"required,email"`              // notification address
	DeliveryDate  string `json:"deliveryDate" validate:"required,datetime=2006-01-02"` // locker pickup day
}

// BatchQuery is the query string of POST /orders/batch
type BatchQuery struct {
	Size int `form:"size" validate:"omitempty,min=1,max=100"` // defaults to the generator batch size
}
