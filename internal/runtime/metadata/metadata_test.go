package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Headers{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}

	var empty Headers
	if empty.Clone() == nil {
		t.Fatal("expected non-nil clone of nil headers")
	}
}

func TestWith(t *testing.T) {
	base := Headers{"foo": "bar"}
	enriched := base.With("baz", "qux")
	if _, ok := base["baz"]; ok {
		t.Fatalf("expected base map to remain unchanged")
	}
	if enriched["baz"] != "qux" || enriched["foo"] != "bar" {
		t.Fatalf("unexpected enriched headers %#v", enriched)
	}
}

func TestMergePrecedence(t *testing.T) {
	static := Headers{"tenant": "acme", "source": "static"}
	call := Headers{"source": "call"}

	merged := Merge(static, nil, call)

	if merged["tenant"] != "acme" {
		t.Fatalf("expected lower layer to survive, got %#v", merged)
	}
	if merged["source"] != "call" {
		t.Fatalf("expected later layer to win, got %q", merged["source"])
	}
	merged["tenant"] = "changed"
	if static["tenant"] != "acme" {
		t.Fatal("merge must not alias its inputs")
	}
}

func TestUserDropsReservedHeaders(t *testing.T) {
	h := Headers{
		HeaderCorrelationID: "1",
		HeaderReplyTo:       "replies",
		"Content-Type":      "application/json",
		"tenant":            "acme",
	}

	user := h.User()
	if len(user) != 1 || user["tenant"] != "acme" {
		t.Fatalf("expected only user headers, got %#v", user)
	}
}

func TestNewPairs(t *testing.T) {
	h := New("key", "value", "another", "entry", "dangling")
	if h["key"] != "value" || h["another"] != "entry" {
		t.Fatalf("unexpected headers %#v", h)
	}
	if _, ok := h["dangling"]; ok {
		t.Fatal("expected dangling key to be ignored")
	}
}

func TestToAndFromWatermill(t *testing.T) {
	h := Headers{"source": "api"}
	wm := ToWatermill(h)
	if wm["source"] != "api" {
		t.Fatalf("expected watermill metadata to copy entries")
	}
	wm["source"] = "mutation"
	if h["source"] != "api" {
		t.Fatalf("expected original headers to be immutable to watermill changes")
	}

	if len(ToWatermill(nil)) != 0 {
		t.Fatal("expected nil input to return empty metadata")
	}

	back := FromWatermill(message.Metadata{"event": "order"})
	if back["event"] != "order" {
		t.Fatalf("expected watermill metadata to convert back")
	}
}
