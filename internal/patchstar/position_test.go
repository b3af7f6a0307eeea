package patchstar

import (
	"math"
	"testing"
)

func TestScale_RoundTrip(t *testing.T) {
	scale := DefaultScale
	raws := []RawPosition{
		{0, 0, 0},
		{1, 2, 3},
		{100, -250, 9999},
		{-1000000, 1000000, 1},
	}

	for _, raw := range raws {
		got := scale.Raw(scale.Physical(raw))
		if got != raw {
			t.Errorf("round trip %v = %v", raw, got)
		}
	}
}

func TestScale_Raw_RoundsNearest(t *testing.T) {
	// 1e-6 / 1e-7 computes to 9.999... in floating point; truncation
	// would yield 9 device units instead of 10.
	got := DefaultScale.Raw(Position{1e-6, 0, 0})
	if got != (RawPosition{10, 0, 0}) {
		t.Errorf("Raw(1µm) = %v, want [10 0 0]", got)
	}
}

func TestScale_PerAxis(t *testing.T) {
	scale := Scale{1e-7, 2e-7, 5e-8}
	pos := scale.Physical(RawPosition{10, 10, 10})
	want := Position{1e-6, 2e-6, 5e-7}
	for i := range pos {
		if math.Abs(pos[i]-want[i]) > 1e-15 {
			t.Errorf("axis %d = %g, want %g", i, pos[i], want[i])
		}
	}
}

func TestPosition_DistanceTo(t *testing.T) {
	a := Position{0, 0, 0}
	b := Position{3e-6, 4e-6, 0}
	if d := a.DistanceTo(b); math.Abs(d-5e-6) > 1e-15 {
		t.Errorf("DistanceTo = %g, want 5e-6", d)
	}
	if d := a.DistanceTo(a); d != 0 {
		t.Errorf("DistanceTo(self) = %g, want 0", d)
	}
}
