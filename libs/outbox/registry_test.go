package outbox

import (
	"errors"
	"testing"
)

type pingEvent struct {
	ID string `json:"id"`
}

func TestRegistryDecode(t *testing.T) {
	r := NewRegistry()
	r.Register("ping.v1", JSONDecoder[pingEvent]())

	event, err := r.Decode("ping.v1", []byte(`{"id":"p1"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ping, ok := event.(pingEvent)
	if !ok || ping.ID != "p1" {
		t.Fatalf("unexpected decode result: %T %+v", event, event)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Decode("never.registered.v1", []byte(`{}`)); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
	if r.Known("never.registered.v1") {
		t.Fatal("Known should be false for unregistered type")
	}
}

func TestRegistryMalformedPayload(t *testing.T) {
	r := NewRegistry()
	r.Register("ping.v1", JSONDecoder[pingEvent]())
	if _, err := r.Decode("ping.v1", []byte(`{"id":`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestRegistryDuplicateRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r := NewRegistry()
	r.Register("ping.v1", JSONDecoder[pingEvent]())
	r.Register("ping.v1", JSONDecoder[pingEvent]())
}
