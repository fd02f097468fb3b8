package coord

import "testing"

func TestRankCoordsRoundTrip2D(t *testing.T) {
	bits := 4
	n := uint64(1) << uint(bits)
	seen := make(map[uint64]bool)
	for x := uint64(0); x < n; x++ {
		for y := uint64(0); y < n; y++ {
			rank, err := Rank([]uint64{x, y}, bits)
			if err != nil {
				t.Fatalf("Rank(%d,%d): %v", x, y, err)
			}
			if seen[rank] {
				t.Fatalf("duplicate rank %d for (%d,%d)", rank, x, y)
			}
			seen[rank] = true
			coords, err := Coords(rank, bits, 2)
			if err != nil {
				t.Fatalf("Coords(%d): %v", rank, err)
			}
			if coords[0] != x || coords[1] != y {
				t.Errorf("Coords(Rank(%d,%d)) = %v, want [%d %d]", x, y, coords, x, y)
			}
		}
	}
}

func TestRankCoordsRoundTrip3D(t *testing.T) {
	bits := 3
	n := uint64(1) << uint(bits)
	for x := uint64(0); x < n; x++ {
		for y := uint64(0); y < n; y++ {
			for z := uint64(0); z < n; z++ {
				coords := []uint64{x, y, z}
				rank, err := Rank(coords, bits)
				if err != nil {
					t.Fatalf("Rank: %v", err)
				}
				got, err := Coords(rank, bits, 3)
				if err != nil {
					t.Fatalf("Coords: %v", err)
				}
				for i := range coords {
					if got[i] != coords[i] {
						t.Fatalf("Coords(Rank(%v)) = %v, want %v", coords, got, coords)
					}
				}
			}
		}
	}
}

func TestRankLocality(t *testing.T) {
	// Consecutive ranks along the curve are adjacent in space: every step
	// moves exactly one cell along exactly one axis.
	bits := 5
	n := uint64(1) << uint(bits)
	prev, err := Coords(0, bits, 2)
	if err != nil {
		t.Fatalf("Coords: %v", err)
	}
	for r := uint64(1); r < n*n; r++ {
		cur, err := Coords(r, bits, 2)
		if err != nil {
			t.Fatalf("Coords(%d): %v", r, err)
		}
		dx := absDiff(cur[0], prev[0])
		dy := absDiff(cur[1], prev[1])
		if dx+dy != 1 {
			t.Fatalf("rank %d -> %d is not a unit step: %v to %v", r-1, r, prev, cur)
		}
		prev = cur
	}
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestRankRejectsOversizedIndexSpace(t *testing.T) {
	if _, err := Rank([]uint64{1, 2, 3, 4, 5}, 16); err == nil {
		t.Fatal("expected an error when bits*dims exceeds 64")
	}
}

func TestSortByHilbert(t *testing.T) {
	type point struct{ x, y uint64 }
	pts := []point{{3, 3}, {0, 0}, {1, 1}, {2, 2}}
	if err := SortByHilbert(pts, 4, func(p point) []uint64 { return []uint64{p.x, p.y} }); err != nil {
		t.Fatalf("SortByHilbert: %v", err)
	}
	for i := 1; i < len(pts); i++ {
		ri, _ := Rank([]uint64{pts[i-1].x, pts[i-1].y}, 4)
		rj, _ := Rank([]uint64{pts[i].x, pts[i].y}, 4)
		if ri > rj {
			t.Errorf("items not sorted by hilbert rank at index %d", i)
		}
	}
}
