package env

import (
	"strings"
	"testing"
)

func toMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

func TestMergePrecedenceAndExpansion(t *testing.T) {
	e := New().
		WithBase([]string{"HOME=/home/u", "PORT=1", "=broken", "noequals"}).
		WithSet("PORT", "4900").
		WithSet("BASE", "http://localhost:${PORT}")

	m := toMap(e.Merge([]string{"BIG_MODEL=cortex-15", "HOME=/tmp"}))
	if m["PORT"] != "4900" {
		t.Fatalf("global override not applied: %v", m)
	}
	if m["HOME"] != "/tmp" {
		t.Fatalf("per-process override not applied: %v", m)
	}
	if m["BASE"] != "http://localhost:4900" {
		t.Fatalf("expansion failed: %q", m["BASE"])
	}
	if m["BIG_MODEL"] != "cortex-15" {
		t.Fatalf("per-process var missing: %v", m)
	}
	if _, ok := m[""]; ok {
		t.Fatalf("empty key leaked")
	}
	if len(m) != 4 {
		t.Fatalf("unexpected keys: %v", m)
	}
}

func TestWithSetDoesNotMutateReceiver(t *testing.T) {
	a := New().WithBase(nil)
	b := a.WithSet("X", "1")
	if _, ok := a.Get("X"); ok {
		t.Fatalf("WithSet mutated receiver")
	}
	if v, _ := b.Get("X"); v != "1" {
		t.Fatalf("WithSet lost value")
	}
}

func TestMergeUnknownReferenceKept(t *testing.T) {
	out := New().WithBase(nil).Merge([]string{"A=${NOPE}-x"})
	if len(out) != 1 || out[0] != "A=${NOPE}-x" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestMergeSorted(t *testing.T) {
	out := New().WithBase([]string{"B=2", "A=1", "C=3"}).Merge(nil)
	if strings.Join(out, ",") != "A=1,B=2,C=3" {
		t.Fatalf("not sorted: %v", out)
	}
}

func TestWithKVs(t *testing.T) {
	base := New().WithBase(nil)
	e := base.WithKVs([]string{"A=1", "B=2", "A=3", "bad"})
	if v, _ := e.Get("A"); v != "3" {
		t.Fatalf("later entry should win, got %q", v)
	}
	if _, ok := base.Get("A"); ok {
		t.Fatalf("WithKVs must not mutate the receiver")
	}
	if m := toMap(e.Merge(nil)); len(m) != 2 {
		t.Fatalf("unexpected merge %v", m)
	}
}
