package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode binds a validated Input to a typed request using the request's json tags.
//
// Example usage:
//
//	type getLeaseRequest struct {
//	    LeaseID string `json:"lease_id"`
//	}
//	req, err := tool.Decode[getLeaseRequest](in)
func Decode[T any](in Input) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(in)); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}
