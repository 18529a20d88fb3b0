package zonal

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// PixelRange is a half-open column interval [ColStart, ColEnd) on one raster
// row belonging to one feature's rasterized footprint.
type PixelRange struct {
	Row      int
	ColStart int
	ColEnd   int
	Feature  int
}

// edge is one non-horizontal boundary segment. dxdy is precomputed so the
// x-intercept at a row centerline is a single multiply-add.
type edge struct {
	x0, y0 float64
	x1, y1 float64
	dxdy   float64
}

// Index rasterizes one geometry's footprint onto the grid using classic
// scanline rasterization: for every grid row the geometry's bounding box
// overlaps, the boundary crossings of that row's centerline are sorted and
// paired left-to-right under the even-odd rule. Holes are rings that flip
// parity in the same pass; multi-polygons contribute all their rings to the
// same feature index. A cell belongs to the polygon that contains its
// center.
//
// A geometry whose bounding box misses the grid extent yields zero ranges.
// Index is a pure function of its inputs and may be called repeatedly.
func Index(geom orb.Geometry, grid Grid, feature int) ([]PixelRange, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	rings, err := ringsOf(geom)
	if err != nil {
		return nil, err
	}

	bb := geom.Bound()
	if !bb.Intersects(grid.Bound()) {
		return nil, nil
	}

	edges := collectEdges(rings)
	if len(edges) == 0 {
		return nil, nil
	}

	loRow, hiRow := rowSpan(bb, grid)
	if loRow > hiRow {
		return nil, nil
	}

	var ranges []PixelRange
	var xs []float64
	for row := loRow; row <= hiRow; row++ {
		cy := grid.RowCenterY(row)

		xs = xs[:0]
		for _, e := range edges {
			// Half-open in y so a crossing exactly at a shared vertex is
			// counted once.
			if (e.y0 <= cy && cy < e.y1) || (e.y1 <= cy && cy < e.y0) {
				xs = append(xs, e.x0+(cy-e.y0)*e.dxdy)
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			ranges = appendColRange(ranges, grid, row, xs[i], xs[i+1], feature)
		}
	}
	return ranges, nil
}

// IndexAll rasterizes every geometry against the grid, tagging each range
// with the geometry's position in the input slice. One grid scan can then
// serve all features at once, which is what makes batched queries cheap.
// A geometry error aborts the whole batch.
func IndexAll(geoms []orb.Geometry, grid Grid) ([]PixelRange, error) {
	var all []PixelRange
	for i, geom := range geoms {
		ranges, err := Index(geom, grid, i)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		all = append(all, ranges...)
	}
	return all, nil
}

// ringsOf flattens an areal geometry into its rings. Non-areal geometry
// types are rejected.
func ringsOf(geom orb.Geometry) ([]orb.Ring, error) {
	switch v := geom.(type) {
	case orb.Polygon:
		return v, nil
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, poly := range v {
			rings = append(rings, poly...)
		}
		return rings, nil
	case orb.Ring:
		return []orb.Ring{v}, nil
	case orb.Bound:
		return []orb.Ring{v.ToRing()}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, geom)
	}
}

func collectEdges(rings []orb.Ring) []edge {
	var edges []edge
	for _, ring := range rings {
		n := len(ring)
		if n < 3 {
			continue
		}
		for i := 0; i < n; i++ {
			a, b := ring[i], ring[(i+1)%n]
			if a[1] == b[1] {
				// Horizontal segments never cross a centerline.
				continue
			}
			edges = append(edges, edge{
				x0: a[0], y0: a[1],
				x1: b[0], y1: b[1],
				dxdy: (b[0] - a[0]) / (b[1] - a[1]),
			})
		}
	}
	return edges
}

// rowSpan maps the bounding box's vertical extent to an inclusive row
// interval, clamped to the grid. Works for either sign of SY.
func rowSpan(bb orb.Bound, grid Grid) (lo, hi int) {
	rA := (bb.Max[1] - grid.Y0) / grid.SY
	rB := (bb.Min[1] - grid.Y0) / grid.SY
	if rA > rB {
		rA, rB = rB, rA
	}
	lo = int(math.Floor(rA))
	hi = int(math.Ceil(rB))
	if lo < 0 {
		lo = 0
	}
	if hi > grid.Height-1 {
		hi = grid.Height - 1
	}
	return lo, hi
}

// appendColRange converts one inside interval [xa, xb) in world coordinates
// to the half-open column range whose cell centers fall inside it.
func appendColRange(ranges []PixelRange, grid Grid, row int, xa, xb float64, feature int) []PixelRange {
	// Cell col's center is at X0 + (col+0.5)*SX; it lies inside [xa, xb)
	// when col >= (xa-X0)/SX - 0.5 and col < (xb-X0)/SX - 0.5.
	start := int(math.Ceil((xa-grid.X0)/grid.SX - 0.5))
	end := int(math.Ceil((xb-grid.X0)/grid.SX - 0.5))
	if start < 0 {
		start = 0
	}
	if end > grid.Width {
		end = grid.Width
	}
	if start >= end {
		return ranges
	}
	return append(ranges, PixelRange{Row: row, ColStart: start, ColEnd: end, Feature: feature})
}
