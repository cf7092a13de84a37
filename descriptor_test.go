package qlog

import (
	"strings"
	"testing"
)

func TestRegisterCallSite(t *testing.T) {
	d := RegisterCallSite(LevelInfo, "x={}", KindInt64)
	if d == nil {
		t.Fatal("nil descriptor")
	}
	if descriptorByID(d.ID()) != d {
		t.Fatal("descriptor not resolvable by its id")
	}
	md := d.Metadata
	if md.Level != LevelInfo || md.Event != EventLog || md.Format != "x={}" {
		t.Fatalf("metadata wrong: %+v", md)
	}
	if md.File != "descriptor_test.go" {
		t.Fatalf("captured file %q, want descriptor_test.go", md.File)
	}
	if !strings.Contains(md.Function, "TestRegisterCallSite") {
		t.Fatalf("captured function %q", md.Function)
	}
	if md.Line == "0" || md.Line == "" {
		t.Fatal("line not captured")
	}
}

func TestCallSiteCache(t *testing.T) {
	pc := uintptr(0xdeadbeef)
	intKey := uint64(KindInt64)
	a := callSiteDescriptor(pc, intKey, 1, 0, "a={}", LevelDebug, EventLog)
	b := callSiteDescriptor(pc, intKey, 1, 0, "a={}", LevelDebug, EventLog)
	if a != b {
		t.Fatal("same call site registered twice")
	}

	// A different kind tuple at the same pc is a distinct call site
	c := callSiteDescriptor(pc, uint64(KindString), 1, 0, "a={}", LevelDebug, EventLog)
	if c == a {
		t.Fatal("distinct kind tuples shared a descriptor")
	}
	if len(c.kinds) != 1 || c.kinds[0] != KindString {
		t.Fatalf("kind tuple decoded wrong: %v", c.kinds)
	}

	// A multi-argument tuple unpacks in declaration order
	two := uint64(KindString) | uint64(KindInt64)<<4
	d := callSiteDescriptor(pc, two, 2, 0, "{} {}", LevelDebug, EventLog)
	if len(d.kinds) != 2 || d.kinds[0] != KindString || d.kinds[1] != KindInt64 {
		t.Fatalf("kind tuple decoded wrong: %v", d.kinds)
	}
}

func TestExtractFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/a/b/c.go", "c.go"},
		{"c.go", "c.go"},
		{"C:\\src\\m.go", "m.go"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractFileName(tt.in); got != tt.want {
			t.Fatalf("extractFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
