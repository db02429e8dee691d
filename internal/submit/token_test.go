package submit

import (
	"strings"
	"testing"
)

func TestOrderTokenRoundTrip(t *testing.T) {
	token := NewOrderToken(12345)
	if !strings.HasPrefix(token, "ORD-") {
		t.Fatalf("unexpected token %q", token)
	}

	prefix, ids, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prefix != PrefixOrder {
		t.Fatalf("prefix = %q, want %q", prefix, PrefixOrder)
	}
	if len(ids) != 1 || ids[0] != 12345 {
		t.Fatalf("ids = %v, want [12345]", ids)
	}
}

func TestMergeTokenPreservesOrder(t *testing.T) {
	token := NewMergeToken([]int64{3, 1, 2})

	prefix, ids, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prefix != PrefixMerge {
		t.Fatalf("prefix = %q, want %q", prefix, PrefixMerge)
	}
	want := []int64{3, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestRedTokenRoundTrip(t *testing.T) {
	prefix, ids, err := ParseToken(NewRedToken(987654321))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prefix != PrefixRed || len(ids) != 1 || ids[0] != 987654321 {
		t.Fatalf("got prefix %q ids %v", prefix, ids)
	}
}

func TestTokensDifferPerSubmission(t *testing.T) {
	if NewOrderToken(42) == NewOrderToken(42) {
		t.Fatal("expected distinct tokens for repeated submissions")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"ORD",
		"ORD-zzzzzzzz-1",
		"ORD-abcd1234-",
		"ORD-abcd1234-abc",
		"FOO-abcd1234-1",
		"ORD-abcd1234-0",
		"ord-abcd1234-1",
		"ORD-abcd12-1",
	}
	for _, token := range cases {
		if _, _, err := ParseToken(token); err == nil {
			t.Fatalf("expected parse failure for %q", token)
		}
	}
}
