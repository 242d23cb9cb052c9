package xid

import (
	"encoding/json"
	"testing"
)

func TestStringParseRoundTrip(t *testing.T) {
	id := New()
	s := id.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	id := New()
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatal(err)
	}
	var got ID
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestNewProducesDistinctIDs(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("expected distinct ids")
	}
}
