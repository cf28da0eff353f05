package trips

import (
	"encoding/json"
	"fmt"
)

// envelope is Trip without its methods, so encoding/json uses the tags.
type envelope Trip

// MarshalJSON flattens the variant fields onto the common envelope, the
// shape served by the trips API.
func (t Trip) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(envelope(t))
	if err != nil {
		return nil, err
	}
	if t.Details == nil {
		return base, nil
	}
	extra, err := json.Marshal(t.Details)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(extra, &fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the flattened envelope. Unknown types decode
// without Details rather than failing.
func (t *Trip) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var d Details
	switch env.Type {
	case KindLouage:
		d = &Louage{}
	case KindBus:
		d = &Bus{}
	case KindTransporter:
		d = &Transporter{}
	default:
		d = nil
	}
	if d != nil {
		if err := json.Unmarshal(data, d); err != nil {
			return fmt.Errorf("decode %s trip: %w", env.Type, err)
		}
	}
	*t = Trip(env)
	t.Details = d
	return nil
}
