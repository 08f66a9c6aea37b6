package claims

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrInvalidPayload is returned when a payload is not a JSON object.
var ErrInvalidPayload = errors.New("claims payload is not a JSON object")

// DecodePayload parses a JSON object, keeping numbers as json.Number.
func DecodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	return payload, nil
}

// Build runs factory over payload and validates the result when it implements Validator.
func Build[T View](payload map[string]any, factory Factory[T]) (T, error) {
	v := factory(payload)
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			var zero T
			return zero, err
		}
	}
	return v, nil
}
