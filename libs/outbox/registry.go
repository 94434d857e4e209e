package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEventType = errors.New("unknown event type")

// DecodeFunc turns a stored payload into a typed event.
type DecodeFunc func(payload []byte) (any, error)

// Registry maps event type names to decoders. It is built once at
// startup; draining a type that was never registered is a permanent
// failure, not a retryable one.
type Registry struct {
	decoders map[string]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: map[string]DecodeFunc{}}
}

func (r *Registry) Register(eventType string, decode DecodeFunc) {
	if eventType == "" || decode == nil {
		panic("outbox: empty event type or nil decoder")
	}
	if _, dup := r.decoders[eventType]; dup {
		panic("outbox: duplicate decoder for " + eventType)
	}
	r.decoders[eventType] = decode
}

func (r *Registry) Known(eventType string) bool {
	_, ok := r.decoders[eventType]
	return ok
}

func (r *Registry) Decode(eventType string, payload []byte) (any, error) {
	decode, ok := r.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	return decode(payload)
}

// JSONDecoder builds a DecodeFunc for a flat JSON event schema.
func JSONDecoder[T any]() DecodeFunc {
	return func(payload []byte) (any, error) {
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", err)
		}
		return event, nil
	}
}
