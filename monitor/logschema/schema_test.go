package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("order_event", map[string]interface{}{
		"event":       "spawned",
		"instance_id": uint64(1),
		"order_id":    "o-1",
		"type":        "EXPRESS",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("order_event", map[string]interface{}{
		"order_id": "o-1",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestValidateUnknownEvent(t *testing.T) {
	if err := Validate("free_form", nil); err != nil {
		t.Fatalf("unknown events are not checked: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "round_event" {
			found = true
		}
	}
	if !found {
		t.Fatalf("round_event not found in schemas")
	}
}
