package services

import (
	"sort"
	"testing"
)

func TestNeighboringViewpointsCounts(t *testing.T) {
	faces := []string{"up", "down", "front", "back", "left", "right"}
	edges := []string{
		"upfront", "upback", "upleft", "upright",
		"downfront", "downback", "downleft", "downright",
		"frontleft", "frontright", "backleft", "backright",
	}
	corners := []string{
		"upfrontleft", "upfrontright", "upbackleft", "upbackright",
		"downfrontleft", "downfrontright", "downbackleft", "downbackright",
	}

	for _, vp := range faces {
		if got := NeighboringViewpoints(vp); len(got) != 6 {
			t.Fatalf("face %q: got %d neighbors %v, want 6", vp, len(got), got)
		}
	}
	for _, vp := range append(edges, corners...) {
		if got := NeighboringViewpoints(vp); len(got) != 8 {
			t.Fatalf("%q: got %d neighbors %v, want 8", vp, len(got), got)
		}
	}
}

func TestNeighboringViewpointsFace(t *testing.T) {
	got := NeighboringViewpoints("up")
	want := []string{"back", "front", "upback", "upfront", "upleft", "upright"}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("up: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("up: got %v, want %v", got, want)
		}
	}
}

func TestNeighboringViewpointsEdge(t *testing.T) {
	got := NeighboringViewpoints("upfront")
	want := []string{
		"front", "frontleft", "frontright", "up",
		"upfrontleft", "upfrontright", "upleft", "upright",
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("upfront: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("upfront: got %v, want %v", got, want)
		}
	}
}

func TestNeighboringViewpointsCorner(t *testing.T) {
	got := NeighboringViewpoints("downbackright")
	want := []string{
		"back", "backright", "down", "downback",
		"downbackleft", "downright", "right", "upbackright",
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("downbackright: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("downbackright: got %v, want %v", got, want)
		}
	}
}

func TestNeighboringViewpointsExcludesSelf(t *testing.T) {
	for _, vp := range []string{"left", "frontright", "upbackleft"} {
		for _, n := range NeighboringViewpoints(vp) {
			if n == vp {
				t.Fatalf("%q listed as its own neighbor", vp)
			}
		}
	}
}

func TestNeighboringViewpointsOffLattice(t *testing.T) {
	for _, vp := range []string{"unknown", "", "frontup", "dorsal", "upup"} {
		if got := NeighboringViewpoints(vp); got != nil {
			t.Fatalf("%q: got %v, want none", vp, got)
		}
	}
}
