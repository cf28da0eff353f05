package trips

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a trip payload before it is written to the store.
func Validate(t Trip) error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, t.Type)
	}
	if t.Details == nil || t.Details.Kind() != t.Type {
		return fmt.Errorf("%s trip without %s details", t.Type, t.Type)
	}
	if err := validate.Struct(t); err != nil {
		return err
	}
	if t.ArrivalTime.Before(t.DepartureTime) {
		return ErrArrivalBeforeDeparture
	}
	return validate.Struct(t.Details)
}

// ValidateStation checks a station payload.
func ValidateStation(s Station) error {
	return validate.Struct(s)
}
