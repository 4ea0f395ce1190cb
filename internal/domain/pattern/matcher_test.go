package pattern

import "testing"

func TestCompileKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
	}{
		{"exact", Exact},
		{"foo*", Prefix},
		{"*foo", Suffix},
		{"foo*bar", Wildcard},
		{"a*b*c", Wildcard},
		{"*", Wildcard},
	}
	for _, c := range cases {
		p, err := Compile(c.raw)
		if err != nil {
			t.Fatalf("Compile(%q) error: %v", c.raw, err)
		}
		if p.Kind() != c.kind {
			t.Errorf("Compile(%q).Kind() = %v, want %v", c.raw, p.Kind(), c.kind)
		}
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "foo?", "foo**bar"} {
		if _, err := Compile(raw); err == nil {
			t.Errorf("Compile(%q) expected error", raw)
		}
	}
}

func TestMultiWildcardOnlyOutermostHonoured(t *testing.T) {
	p, err := Compile("a*b*c")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Match("a-anything-in-the-middle-c") {
		t.Error("expected match ignoring middle wildcard content")
	}
	if p.Match("x-anything-c") {
		t.Error("expected no match: wrong prefix")
	}
}

func TestMatchCaseSensitive(t *testing.T) {
	p, _ := Compile("Foo*")
	if p.Match("foobar") {
		t.Error("expected case-sensitive mismatch")
	}
	if !p.Match("Foobar") {
		t.Error("expected match")
	}
}

func TestMatchAny(t *testing.T) {
	pats, err := CompileAll([]string{"payments.*", "admin.delete"})
	if err != nil {
		t.Fatal(err)
	}
	if !MatchAny(pats, "payments.create") {
		t.Error("expected match")
	}
	if MatchAny(pats, "other.tool") {
		t.Error("expected no match")
	}
}
