package ident

import (
	"regexp"
	"testing"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{21}$`)

func TestNewFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := New()
		if !idPattern.MatchString(id) {
			t.Fatalf("New() = %q, does not match %s", id, idPattern)
		}
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q after %d generations", id, i)
		}
		seen[id] = struct{}{}
	}
}
