package processor

import (
	"sort"

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"optionflow/logger"
	"optionflow/models"
)

// Surface is a sparse, queryable volatility surface: one grid per option
// side, keyed by (strike, tenor days). Only observed points exist; a
// lookup at an unobserved coordinate reports absence rather than an
// interpolated value.
type Surface struct {
	Currency string
	sides    map[models.Side]*sideGrid
}

// sideGrid holds one side's observations, a red-black tree of strikes
// per tenor so nearest-strike queries stay ordered without re-sorting.
type sideGrid struct {
	tenors map[int]*rbt.Tree // strike -> iv
}

func newSideGrid() *sideGrid {
	return &sideGrid{tenors: make(map[int]*rbt.Tree)}
}

func (g *sideGrid) tree(tenorDays int) *rbt.Tree {
	t, ok := g.tenors[tenorDays]
	if !ok {
		t = rbt.NewWith(utils.Float64Comparator)
		g.tenors[tenorDays] = t
	}
	return t
}

// SurfaceBuilder constructs a Surface from a snapshot. Contracts without
// an observed mark IV contribute no point.
type SurfaceBuilder struct {
	log *logger.Log
}

func NewSurfaceBuilder() *SurfaceBuilder {
	return &SurfaceBuilder{log: logger.GetLogger()}
}

func (sb *SurfaceBuilder) Build(snapshot *models.Snapshot) *Surface {
	surface := &Surface{
		Currency: snapshot.Currency,
		sides: map[models.Side]*sideGrid{
			models.SideCall: newSideGrid(),
			models.SidePut:  newSideGrid(),
		},
	}

	var points int
	for _, c := range snapshot.Contracts {
		if c.MarkIV <= 0 {
			continue
		}
		surface.sides[c.Side].tree(c.TenorDays).Put(c.Strike, c.MarkIV)
		points++
	}

	sb.log.WithComponent("surface").WithFields(logger.Fields{
		"currency": snapshot.Currency,
		"points":   points,
	}).Debug("surface built")
	return surface
}

// Lookup returns the observed IV at the exact coordinate, or false when
// no point exists there.
func (s *Surface) Lookup(side models.Side, strike float64, tenorDays int) (float64, bool) {
	grid, ok := s.sides[side]
	if !ok {
		return 0, false
	}
	tree, ok := grid.tenors[tenorDays]
	if !ok {
		return 0, false
	}
	v, found := tree.Get(strike)
	if !found {
		return 0, false
	}
	return v.(float64), true
}

// NearestStrike returns the observed strike closest to the query within
// one side and tenor, the lower strike on a tie. False when the tenor has
// no observations.
func (s *Surface) NearestStrike(side models.Side, strike float64, tenorDays int) (float64, bool) {
	grid, ok := s.sides[side]
	if !ok {
		return 0, false
	}
	tree, ok := grid.tenors[tenorDays]
	if !ok || tree.Empty() {
		return 0, false
	}

	floor, hasFloor := tree.Floor(strike)
	ceil, hasCeil := tree.Ceiling(strike)
	switch {
	case hasFloor && !hasCeil:
		return floor.Key.(float64), true
	case !hasFloor && hasCeil:
		return ceil.Key.(float64), true
	}
	lo, hi := floor.Key.(float64), ceil.Key.(float64)
	if strike-lo <= hi-strike {
		return lo, true
	}
	return hi, true
}

// AtTheMoney returns the observed point whose strike sits closest to the
// spot price within one side and tenor, the lower strike on a tie. False
// when the tenor has no observations.
func (s *Surface) AtTheMoney(side models.Side, spot float64, tenorDays int) (models.SurfacePoint, bool) {
	strike, ok := s.NearestStrike(side, spot, tenorDays)
	if !ok {
		return models.SurfacePoint{}, false
	}
	iv, _ := s.Lookup(side, strike, tenorDays)
	return models.SurfacePoint{Strike: strike, TenorDays: tenorDays, Side: side, IV: iv}, true
}

// Smile returns one side's observations at one tenor in ascending strike
// order.
func (s *Surface) Smile(side models.Side, tenorDays int) []models.SurfacePoint {
	grid, ok := s.sides[side]
	if !ok {
		return nil
	}
	tree, ok := grid.tenors[tenorDays]
	if !ok {
		return nil
	}
	points := make([]models.SurfacePoint, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		points = append(points, models.SurfacePoint{
			Strike:    it.Key().(float64),
			TenorDays: tenorDays,
			Side:      side,
			IV:        it.Value().(float64),
		})
	}
	return points
}

// Tenors returns the tenors with at least one observation on the side,
// ascending.
func (s *Surface) Tenors(side models.Side) []int {
	grid, ok := s.sides[side]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(grid.tenors))
	for tenor := range grid.tenors {
		out = append(out, tenor)
	}
	sort.Ints(out)
	return out
}

// Points returns every observed point, ordered by side (calls first),
// tenor, then strike.
func (s *Surface) Points() []models.SurfacePoint {
	var out []models.SurfacePoint
	for _, side := range []models.Side{models.SideCall, models.SidePut} {
		for _, tenor := range s.Tenors(side) {
			out = append(out, s.Smile(side, tenor)...)
		}
	}
	return out
}
