// Package block models the 3-D block grid of a distributed inference run.
//
// A run is split into jobs. Each job owns a manifest of block coordinates
// (written once before any worker starts) and, per training iteration, a
// progress log that its worker appends to as blocks finish. Everything in
// this package is pure: callers hand in bytes and get sets back, so the
// completeness rules can be tested without filesystem fixtures.
package block

import (
	"fmt"
	"sort"
)

// Coord is the origin of a block in the partitioned inference grid.
//
// Equality is exact tuple equality, which makes Coord usable as a map key.
type Coord [3]int

// String renders the coordinate the way workers write it: [x, y, z].
func (c Coord) String() string {
	return fmt.Sprintf("[%d, %d, %d]", c[0], c[1], c[2])
}

// Less orders coordinates lexicographically (x, then y, then z).
func (c Coord) Less(o Coord) bool {
	for i := 0; i < 3; i++ {
		if c[i] != o[i] {
			return c[i] < o[i]
		}
	}
	return false
}

// Set is an unordered set of block coordinates.
type Set map[Coord]struct{}

// NewSet builds a set from a list of coordinates. Duplicates collapse.
func NewSet(coords ...Coord) Set {
	s := make(Set, len(coords))
	for _, c := range coords {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts c into the set.
func (s Set) Add(c Coord) {
	s[c] = struct{}{}
}

// Contains reports whether c is in the set.
func (s Set) Contains(c Coord) bool {
	_, ok := s[c]
	return ok
}

// Len returns the number of distinct coordinates.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the coordinates in lexicographic order.
func (s Set) Sorted() []Coord {
	out := make([]Coord, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Missing returns the coordinates of expected that are absent from processed,
// in lexicographic order. Entries of processed not in expected are ignored.
func Missing(expected, processed Set) []Coord {
	var out []Coord
	for c := range expected {
		if !processed.Contains(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Covers reports whether every coordinate of expected appears in processed.
//
// An empty expected set is covered by anything.
func Covers(expected, processed Set) bool {
	for c := range expected {
		if !processed.Contains(c) {
			return false
		}
	}
	return true
}
