// SPDX-License-Identifier: GPL-3.0-or-later

package eid

import (
	"bytes"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"dtn:none",
		"dtn://foo/",
		"dtn://foo/bar",
		"dtn://foo/bar/baz",
		"ipn:1.1",
		"ipn:4294967294.1.1",
		"ipn:5.1.1",
		"ipn:!.7",
	}

	for _, s := range tests {
		e, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if got := e.String(); got != s {
			t.Fatalf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestIpnCanonicalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ipn:0.0", "dtn:none"},
		{"ipn:0.0.0", "dtn:none"},
		{"ipn:0.1.1", "ipn:1.1"},
		{"ipn:4294967295.7", "ipn:!.7"},
	}

	for _, test := range tests {
		e, err := Parse(test.in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", test.in, err)
		}
		if got := e.String(); got != test.want {
			t.Fatalf("Parse(%q).String() = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestDtnNoneIsOnlyNullTextForm(t *testing.T) {
	e, err := Parse("dtn:none")
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsNull() {
		t.Fatalf("dtn:none did not parse to Null")
	}

	other, err := Parse("dtn://none/")
	if err != nil {
		t.Fatal(err)
	}
	if other.IsNull() {
		t.Fatalf("dtn://none/ must not decode to Null")
	}
}

func TestCborRoundTrip(t *testing.T) {
	tests := []string{"dtn:none", "dtn://foo/bar", "ipn:1.1", "ipn:5.1.1", "ipn:!.7"}

	for _, s := range tests {
		e := MustParse(s)

		var buf bytes.Buffer
		if err := e.MarshalCbor(&buf); err != nil {
			t.Fatalf("MarshalCbor(%q) failed: %v", s, err)
		}

		var decoded ID
		if err := decoded.UnmarshalCbor(&buf); err != nil {
			t.Fatalf("UnmarshalCbor(%q) failed: %v", s, err)
		}

		if decoded != e {
			t.Fatalf("decode(encode(%v)) = %v", e, decoded)
		}
	}
}

func TestDtnNodeNameRejectsDisallowed(t *testing.T) {
	if _, err := NewDtn("foo bar", ""); err == nil {
		t.Fatalf("expected error for node name with space")
	}
	if _, err := NewDtn("", "svc"); err == nil {
		t.Fatalf("expected error for empty node name")
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		eid     string
		want    bool
	}{
		{"ipn:1.*", "ipn:1.5", true},
		{"ipn:1.*", "ipn:2.5", false},
		{"ipn:[1-3,7].*", "ipn:2.1", true},
		{"ipn:[1-3,7].*", "ipn:7.1", true},
		{"ipn:[1-3,7].*", "ipn:5.1", false},
		{"dtn://*/news/.*", "dtn://foo/news/sports", true},
		{"dtn://*/news/.*", "dtn://foo/weather", false},
		{"dtn:none", "dtn:none", true},
		{"dtn:none", "ipn:1.1", false},
	}

	for _, test := range tests {
		p, err := CompilePattern(test.pattern)
		if err != nil {
			t.Fatalf("CompilePattern(%q) failed: %v", test.pattern, err)
		}
		e := MustParse(test.eid)
		if got := p.Match(e); got != test.want {
			t.Fatalf("pattern %q matching %q = %v, want %v", test.pattern, test.eid, got, test.want)
		}
	}
}

func TestPatternMapFindInsertionOrder(t *testing.T) {
	m := NewPatternMap[string]()
	m.Insert(MustCompilePattern("ipn:1.*"), "first")
	m.Insert(MustCompilePattern("ipn:*.*"), "second")
	m.Insert(MustCompilePattern("ipn:1.5"), "third")

	got := m.Find(MustParse("ipn:1.5"))
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("Find returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Find()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
