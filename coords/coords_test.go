package coords

import (
	"testing"
)

func TestMultiplyOrder(t *testing.T) {
	// Scale then translate: (1,1) -> (2,3) -> (12,23)
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{X: 1, Y: 1})
	if p.X != 12 || p.Y != 23 {
		t.Fatalf("got (%g,%g), want (12,23)", p.X, p.Y)
	}

	// The other composition order translates first.
	m = Translate(10, 20).Multiply(Scale(2, 3))
	p = m.Transform(Point{X: 1, Y: 1})
	if p.X != 22 || p.Y != 63 {
		t.Fatalf("got (%g,%g), want (22,63)", p.X, p.Y)
	}
}

func TestIdentity(t *testing.T) {
	p := Identity().Transform(Point{X: 3.5, Y: -2})
	if p.X != 3.5 || p.Y != -2 {
		t.Fatalf("identity moved the point: %+v", p)
	}
}
