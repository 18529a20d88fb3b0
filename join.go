package zonal

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Engine runs zonal-statistics joins. It is a stateless value: the only
// configuration is how raster paths are opened. The zero value opens fgrid
// files; set Open to plug in another raster reader.
type Engine struct {
	Open OpenFunc
}

// NewEngine returns an engine that opens fgrid raster files.
func NewEngine() Engine {
	return Engine{Open: OpenFile}
}

// Join computes, for every geometry, the statistics of the selected band's
// cell values covered by that geometry, across all the given rasters.
// Geometries must already be in the rasters' coordinate reference system.
//
// Rasters are processed strictly one at a time: opened, indexed against
// every geometry, streamed, and closed before the next is touched. A raster
// none of the geometries intersect is skipped without reading cell values.
//
// The result maps every feature index in [0, len(geometries)) to its
// Statistics; features with no usable cells get the empty sentinel. When no
// raster intersects any geometry at all, Join returns ErrNoOverlap instead
// of a map. Geometry and raster I/O errors abort the whole join. If cancel
// fires before completion, Join returns ErrCanceled and discards partial
// results.
func (e Engine) Join(rasterPaths []string, geometries []orb.Geometry, band int, cancel CancelCheck) (map[int]Statistics, error) {
	open := e.Open
	if open == nil {
		open = OpenFile
	}

	agg := NewAggregator()
	intersected := false

	for _, path := range rasterPaths {
		if cancel != nil && cancel() {
			return nil, ErrCanceled
		}

		ds, err := open(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		ranges, err := IndexAll(geometries, ds.Grid())
		if err != nil {
			ds.Close()
			return nil, err
		}
		if len(ranges) == 0 {
			ds.Close()
			continue
		}
		intersected = true

		st, err := NewSampleStream(ds, band, ranges, cancel)
		if err != nil {
			// NewSampleStream closes the dataset on failure.
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := agg.Consume(st); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if cancel != nil && cancel() {
			return nil, ErrCanceled
		}
	}

	if !intersected {
		return nil, ErrNoOverlap
	}
	return agg.Finalize(len(geometries)), nil
}
