package validation

import (
	"slices"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. The order_source tag accepts only the given partner
// sources; with no sources every non-empty value passes.
func New(sources ...string) *validatorv10.Validate {
	v := validatorv10.New()

	allowed := slices.Clone(sources)
	_ = v.RegisterValidation("order_source", func(fl validatorv10.FieldLevel) bool {
		if len(allowed) == 0 {
			return fl.Field().String() != ""
		}
		return slices.Contains(allowed, fl.Field().String())
	})

	return v
}
