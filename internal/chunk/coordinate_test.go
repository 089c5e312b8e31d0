package chunk

import "testing"

func TestCoordinate_NegativeSliceIsNotFullColumn(t *testing.T) {
	slice := Coordinate{Dim: Overworld, X: 0, Z: 0, YSlice: -1}
	full := Coordinate{Dim: Overworld, X: 0, Z: 0, YSlice: AllY}

	if slice == full {
		t.Fatalf("a slice at Y -1 collides with the full-column coordinate")
	}
	if got := slice.CommandY(); got != -1 {
		t.Fatalf("CommandY() = %d, want -1", got)
	}
	if got := full.CommandY(); got != 255 {
		t.Fatalf("full column CommandY() = %d, want 255", got)
	}
	if slice.String() == full.String() {
		t.Fatalf("String() does not distinguish slice -1 from the full column")
	}
}

func TestNormalizeDimension(t *testing.T) {
	cases := []struct {
		in   any
		want Dimension
	}{
		{nil, Overworld},
		{"", Overworld},
		{"nether", Nether},
		{0, Overworld},
		{float64(1), Nether},
		{float64(2), End},
		{float64(7), Dimension("7")},
	}
	for _, c := range cases {
		if got := NormalizeDimension(c.in); got != c.want {
			t.Fatalf("NormalizeDimension(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
