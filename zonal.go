// Package zonal implements a raster–vector zonal-statistics join engine:
// given a set of raster grids and a set of query polygons sharing the
// rasters' coordinate reference system, it computes descriptive statistics
// (min, max, mean, median, mode, stddev, count, quartiles) over the raster
// cell values covered by each polygon.
//
// The engine is a pure computational interface: paths and geometries in,
// statistics out. It keeps no state between calls, so concurrent joins are
// safe as long as each call uses its own raster handles.
package zonal

import (
	"errors"
)

// Common errors returned by this package.
var (
	// ErrNoOverlap is the distinguished "no raster intersected any geometry"
	// signal. It is a sentinel in the sql.ErrNoRows sense: callers must be
	// able to tell "nothing overlapped" apart from "zero is a valid count."
	ErrNoOverlap = errors.New("zonal: no raster intersects any geometry")

	// ErrCanceled is returned when the caller's cancellation check fired
	// before the join completed. Partial results are discarded.
	ErrCanceled = errors.New("zonal: join canceled")

	ErrUnsupportedGeometry = errors.New("zonal: unsupported geometry type")
	ErrInvalidGrid         = errors.New("zonal: invalid raster grid")
	ErrBandRange           = errors.New("zonal: band index out of range")
	ErrInvalidData         = errors.New("zonal: invalid raster data")
	ErrNoIndex             = errors.New("zonal: feature file has no spatial index")
)

// CancelCheck is a cooperative cancellation predicate. The engine polls it
// between processing units (raster rows, rasters); when it returns true the
// current operation stops early. A nil CancelCheck never cancels.
//
// This is deliberately a plain closure rather than a context so the core
// stays portable across single-threaded and multi-threaded hosts.
type CancelCheck func() bool

// ValueSample attributes one raster cell value to one query feature.
// Feature is the geometry's position in the caller-supplied array; the
// engine has no other notion of feature identity.
type ValueSample struct {
	Feature int
	Value   float64
}
