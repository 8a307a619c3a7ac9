package processor

import (
	"testing"

	"optionflow/models"
)

func buildTestSurface() *Surface {
	snapshot := makeSnapshot(50000, []contractSpec{
		{strike: 45000, tenorDays: 7, side: models.SidePut, iv: 58},
		{strike: 50000, tenorDays: 7, side: models.SideCall, iv: 55},
		{strike: 55000, tenorDays: 7, side: models.SideCall, iv: 57},
		{strike: 50000, tenorDays: 30, side: models.SideCall, iv: 60},
		// Unobserved IV never becomes a surface point.
		{strike: 60000, tenorDays: 30, side: models.SideCall, iv: 0},
	})
	return NewSurfaceBuilder().Build(snapshot)
}

func TestSurfaceLookup(t *testing.T) {
	s := buildTestSurface()

	if iv, ok := s.Lookup(models.SideCall, 50000, 7); !ok || iv != 55 {
		t.Errorf("lookup = %v (%v), want 55", iv, ok)
	}
	if iv, ok := s.Lookup(models.SidePut, 45000, 7); !ok || iv != 58 {
		t.Errorf("put lookup = %v (%v), want 58", iv, ok)
	}
}

func TestSurfaceLookupAbsent(t *testing.T) {
	s := buildTestSurface()

	// The coordinate between two observations must report absence, never
	// an interpolated value.
	if _, ok := s.Lookup(models.SideCall, 52500, 7); ok {
		t.Errorf("unobserved strike should be absent")
	}
	if _, ok := s.Lookup(models.SideCall, 50000, 14); ok {
		t.Errorf("unobserved tenor should be absent")
	}
	if _, ok := s.Lookup(models.SidePut, 50000, 30); ok {
		t.Errorf("put side has no observation at tenor 30")
	}
	if _, ok := s.Lookup(models.SideCall, 60000, 30); ok {
		t.Errorf("zero iv contract must not become a point")
	}
}

func TestSurfaceNearestStrike(t *testing.T) {
	s := buildTestSurface()

	if strike, ok := s.NearestStrike(models.SideCall, 51000, 7); !ok || strike != 50000 {
		t.Errorf("nearest = %v (%v), want 50000", strike, ok)
	}
	if strike, ok := s.NearestStrike(models.SideCall, 54000, 7); !ok || strike != 55000 {
		t.Errorf("nearest = %v (%v), want 55000", strike, ok)
	}
	// Equidistant queries resolve to the lower strike.
	if strike, ok := s.NearestStrike(models.SideCall, 52500, 7); !ok || strike != 50000 {
		t.Errorf("tie nearest = %v (%v), want 50000", strike, ok)
	}
	if strike, ok := s.NearestStrike(models.SideCall, 10, 7); !ok || strike != 50000 {
		t.Errorf("below range nearest = %v (%v), want 50000", strike, ok)
	}
	if _, ok := s.NearestStrike(models.SidePut, 50000, 30); ok {
		t.Errorf("empty tenor should report absence")
	}
}

func TestSurfaceAtTheMoney(t *testing.T) {
	s := buildTestSurface()

	point, ok := s.AtTheMoney(models.SideCall, 51000, 7)
	if !ok || point.Strike != 50000 || point.IV != 55 {
		t.Errorf("atm point = %+v (%v), want strike 50000 iv 55", point, ok)
	}
	// The put side only observes 45000 at this tenor.
	point, ok = s.AtTheMoney(models.SidePut, 50000, 7)
	if !ok || point.Strike != 45000 || point.IV != 58 {
		t.Errorf("put atm point = %+v (%v), want strike 45000 iv 58", point, ok)
	}
	if _, ok := s.AtTheMoney(models.SidePut, 50000, 30); ok {
		t.Errorf("empty tenor should report absence")
	}
}

func TestSurfaceSmileOrdering(t *testing.T) {
	s := buildTestSurface()

	smile := s.Smile(models.SideCall, 7)
	if len(smile) != 2 {
		t.Fatalf("smile size = %d, want 2", len(smile))
	}
	if smile[0].Strike != 50000 || smile[1].Strike != 55000 {
		t.Errorf("smile order = %v, %v, want ascending strikes", smile[0].Strike, smile[1].Strike)
	}
}

func TestSurfaceTenorsAndPoints(t *testing.T) {
	s := buildTestSurface()

	tenors := s.Tenors(models.SideCall)
	if len(tenors) != 2 || tenors[0] != 7 || tenors[1] != 30 {
		t.Errorf("call tenors = %v, want [7 30]", tenors)
	}

	points := s.Points()
	if len(points) != 4 {
		t.Fatalf("points = %d, want 4", len(points))
	}
	// Calls first, then tenor, then strike.
	if points[0].Side != models.SideCall || points[0].Strike != 50000 || points[0].TenorDays != 7 {
		t.Errorf("first point = %+v", points[0])
	}
	if points[3].Side != models.SidePut {
		t.Errorf("last point should be the put observation, got %+v", points[3])
	}
}

func TestSurfaceEmptySnapshot(t *testing.T) {
	s := NewSurfaceBuilder().Build(makeSnapshot(50000, nil))
	if len(s.Points()) != 0 {
		t.Errorf("empty snapshot should yield no points")
	}
	if _, ok := s.Lookup(models.SideCall, 50000, 7); ok {
		t.Errorf("lookup on empty surface should report absence")
	}
}
