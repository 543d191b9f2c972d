package models

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MaxSerializedMessageSize is the upper bound on any JSON payload we are
// willing to put on the wire or accept from it.
const MaxSerializedMessageSize = 10 * 1024 * 1024

// JSONMarshalWithMax marshals t and errors if the result exceeds
// MaxSerializedMessageSize, so a single oversized message can't wedge a
// pubsub topic.
func JSONMarshalWithMax[T any](t T) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxSerializedMessageSize {
		return nil, errors.Errorf("serialized message size %d exceeds maximum %d",
			len(payload), MaxSerializedMessageSize)
	}
	return payload, nil
}

// JSONUnmarshalWithMax unmarshals data into t, rejecting oversized payloads
// before attempting to decode them.
func JSONUnmarshalWithMax[T any](data []byte, t *T) error {
	if len(data) > MaxSerializedMessageSize {
		return errors.Errorf("serialized message size %d exceeds maximum %d",
			len(data), MaxSerializedMessageSize)
	}
	return json.Unmarshal(data, t)
}
