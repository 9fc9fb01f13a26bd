package main

import (
	"testing"
)

func TestInputListParsing(t *testing.T) {
	var il inputList
	if err := il.Set("obs:10,5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := il.Set("mask:4"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if len(il) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(il))
	}
	if il[0].Name != "obs" || il[0].Elements() != 50 {
		t.Errorf("unexpected first spec: %+v", il[0])
	}
	if il[1].Name != "mask" || len(il[1].Shape) != 1 {
		t.Errorf("unexpected second spec: %+v", il[1])
	}
	if got := il.String(); got != "obs:10,5 mask:4" {
		t.Errorf("unexpected String: %q", got)
	}
}

func TestInputListRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "noshape", ":1,2", "obs:one,2"} {
		var il inputList
		if err := il.Set(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
