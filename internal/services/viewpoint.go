package services

import (
	"fmt"
	"sort"
	"strings"
)

// Viewpoints live on a 3x3x3 orientation lattice minus the origin: each of
// the up/down, front/back and left/right axes contributes at most one
// component, and components always compose in that axis order ("upfrontleft",
// never "leftupfront"). Face centers have one component, edges two, corners
// three.

type axisComponent struct {
	pos string
	neg string
}

// Axis order is fixed: up/down first, front/back second, left/right third.
var viewpointAxes = [3]axisComponent{
	{pos: "up", neg: "down"},
	{pos: "front", neg: "back"},
	{pos: "left", neg: "right"},
}

// parseViewpoint maps a composite viewpoint name onto lattice coordinates,
// one signed value per axis. Returns false for names off the lattice
// ("unknown", free-form labels, misordered composites).
func parseViewpoint(name string) (coords [3]int, ok bool) {
	rest := name
	for i, axis := range viewpointAxes {
		if strings.HasPrefix(rest, axis.pos) {
			coords[i] = 1
			rest = rest[len(axis.pos):]
		} else if strings.HasPrefix(rest, axis.neg) {
			coords[i] = -1
			rest = rest[len(axis.neg):]
		}
	}
	if rest != "" || coords == [3]int{} {
		return [3]int{}, false
	}
	return coords, true
}

func viewpointName(coords [3]int) string {
	var b strings.Builder
	for i, axis := range viewpointAxes {
		switch coords[i] {
		case 1:
			b.WriteString(axis.pos)
		case -1:
			b.WriteString(axis.neg)
		}
	}
	return b.String()
}

func nonZeroAxes(coords [3]int) []int {
	var out []int
	for i, v := range coords {
		if v != 0 {
			out = append(out, i)
		}
	}
	return out
}

// NeighboringViewpoints returns the orientations adjacent to vp on the
// lattice, vp itself excluded. Face centers have exactly 6 neighbors, edges
// and corners exactly 8. Names off the lattice have none.
func NeighboringViewpoints(vp string) []string {
	coords, ok := parseViewpoint(vp)
	if !ok {
		return nil
	}

	seen := map[[3]int]struct{}{}
	add := func(c [3]int) {
		if c == coords || c == [3]int{} {
			return
		}
		seen[c] = struct{}{}
	}

	axes := nonZeroAxes(coords)
	switch len(axes) {
	case 1:
		a := axes[0]
		// Extend onto each remaining axis, both signs.
		for i := range coords {
			if i == a {
				continue
			}
			for _, s := range []int{1, -1} {
				c := coords
				c[i] = s
				add(c)
			}
		}
		// Both face centers of the cyclically next axis.
		next := (a + 1) % 3
		for _, s := range []int{1, -1} {
			var c [3]int
			c[next] = s
			add(c)
		}
	case 2:
		third := 3 - axes[0] - axes[1]
		// Drop either component.
		for _, a := range axes {
			c := coords
			c[a] = 0
			add(c)
		}
		// Extend onto the free axis, both signs.
		for _, s := range []int{1, -1} {
			c := coords
			c[third] = s
			add(c)
		}
		// Swap either component for the free axis, both signs.
		for _, a := range axes {
			for _, s := range []int{1, -1} {
				c := coords
				c[a] = 0
				c[third] = s
				add(c)
			}
		}
	case 3:
		// Drop any one component, keeping the resulting edge or face.
		for i := range coords {
			c := coords
			c[i] = 0
			add(c)
		}
		// The three contained face centers.
		for i := range coords {
			var c [3]int
			c[i] = coords[i]
			add(c)
		}
		// Flip the first and the last axis components.
		for _, i := range []int{0, 2} {
			c := coords
			c[i] = -c[i]
			add(c)
		}
	}

	want := 8
	if len(axes) == 1 {
		want = 6
	}
	if len(seen) != want {
		// The rule above is closed-form; a miscount means a bug, not data.
		panic(fmt.Sprintf("viewpoint %q produced %d neighbors, want %d", vp, len(seen), want))
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, viewpointName(c))
	}
	sort.Strings(out)
	return out
}
