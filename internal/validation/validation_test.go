package validation

import (
	"errors"
	"testing"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() SubmitOrderRequest {
	return SubmitOrderRequest{
		Product:       "donut-3",
		Source:        "DonutPatrol",
		CustomerName:  "Mark Smith",
		CustomerEmail: "mark@abc.com",
		DeliveryDate:  "2026-10-16",
	}
}

func TestSubmitOrderRequest_Valid(t *testing.T) {
	v := New("DunkinDonuts", "DonutPatrol")
	assert.NoError(t, v.Struct(validRequest()))
}

func TestSubmitOrderRequest_Invalid(t *testing.T) {
	v := New("DunkinDonuts", "DonutPatrol")

	cases := map[string]func(r *SubmitOrderRequest){
		"Source":        func(r *SubmitOrderRequest) { r.Source = "KrispyKreme" },
		"CustomerEmail": func(r *SubmitOrderRequest) { r.CustomerEmail = "not-an-email" },
		"DeliveryDate":  func(r *SubmitOrderRequest) { r.DeliveryDate = "16-10-2026" },
		"Product":       func(r *SubmitOrderRequest) { r.Product = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			err := v.Struct(req)
			require.Error(t, err)

			var ve validatorv10.ValidationErrors
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, field, ve[0].Field())
		})
	}
}

func TestSubmitOrderRequest_AnySourceWithoutAllowList(t *testing.T) {
	req := validRequest()
	req.Source = "KrispyKreme"
	assert.NoError(t, New().Struct(req))
}

func TestBatchQuery(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(BatchQuery{}))
	assert.NoError(t, v.Struct(BatchQuery{Size: 10}))
	assert.Error(t, v.Struct(BatchQuery{Size: 101}))
	assert.Error(t, v.Struct(BatchQuery{Size: -1}))
}
