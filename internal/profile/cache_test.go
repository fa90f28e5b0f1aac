package profile

import (
	"encoding/json"
	"testing"
)

func TestDecodeListingEmptyIsNeverNil(t *testing.T) {
	// A nil slice marshals to JSON null; a hit on an empty cached listing
	// must still produce a slice that serializes as [].
	raw, err := json.Marshal([]Profile(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("marshaled nil slice = %s, want null", raw)
	}

	ps, err := decodeListing(raw)
	if err != nil {
		t.Fatalf("decodeListing: %v", err)
	}
	if ps == nil {
		t.Fatal("decoded listing is nil, want empty slice")
	}
	if len(ps) != 0 {
		t.Fatalf("decoded listing has %d entries, want 0", len(ps))
	}
}

func TestDecodeListingRoundTrip(t *testing.T) {
	in := []Profile{{GitHub: "octocat", Name: "The Octocat", Followers: 42}}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	ps, err := decodeListing(raw)
	if err != nil {
		t.Fatalf("decodeListing: %v", err)
	}
	if len(ps) != 1 || ps[0].GitHub != "octocat" || ps[0].Followers != 42 {
		t.Errorf("decoded listing = %+v, want original entry", ps)
	}
}

func TestDecodeListingRejectsGarbage(t *testing.T) {
	if _, err := decodeListing([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
