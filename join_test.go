package zonal

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEngine builds an Engine whose Open resolves paths from an in-memory
// raster catalogue.
func memEngine(rasters map[string]func() (Dataset, error)) Engine {
	return Engine{Open: func(path string) (Dataset, error) {
		open, ok := rasters[path]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidData, path)
		}
		return open()
	}}
}

// uniformRaster is a 10x10 grid over (0,0)-(10,10) filled with one value.
func uniformRaster(value float64) func() (Dataset, error) {
	return func() (Dataset, error) {
		grid := Grid{X0: 0, Y0: 10, SX: 1, SY: -1, Width: 10, Height: 10, NoData: -9999}
		values := make([]float64, 100)
		for i := range values {
			values[i] = value
		}
		return NewMemoryDataset(grid, values)
	}
}

func TestJoinInsideAndOutsideFeatures(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"soil": uniformRaster(7)})
	geoms := []orb.Geometry{
		square(0, 0, 10, 10),       // covers all 100 cells
		square(100, 100, 105, 105), // entirely outside the extent
	}

	results, err := e.Join([]string{"soil"}, geoms, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	s := results[0]
	assert.Equal(t, int64(100), s.Count)
	assert.Equal(t, 7.0, s.Min)
	assert.Equal(t, 7.0, s.Max)
	assert.Equal(t, 7.0, s.Mean)
	assert.Equal(t, 7.0, s.Median)
	assert.Equal(t, 700.0, s.Sum)
	assert.Equal(t, 0.0, s.StdDev)

	assert.True(t, results[1].IsEmpty(), "feature outside every raster gets the sentinel")
	assert.True(t, math.IsNaN(results[1].Mean))
}

func TestJoinNoOverlap(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){
		"a": uniformRaster(1),
		"b": uniformRaster(2),
	})
	geoms := []orb.Geometry{square(500, 500, 510, 510)}

	results, err := e.Join([]string{"a", "b"}, geoms, 0, nil)
	require.ErrorIs(t, err, ErrNoOverlap)
	assert.Nil(t, results, "no-overlap is a distinguished signal, not an empty map")
}

func TestJoinNodataOnlyIsNotNoOverlap(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"gap": uniformRaster(-9999)})
	geoms := []orb.Geometry{square(2, 2, 5, 5)}

	results, err := e.Join([]string{"gap"}, geoms, 0, nil)
	require.NoError(t, err, "valid overlap with zero usable cells is the per-feature sentinel")
	assert.True(t, results[0].IsEmpty())
}

func TestJoinMergesRasters(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){
		"top":  uniformRaster(1),
		"deep": uniformRaster(3),
	})
	geoms := []orb.Geometry{square(0, 0, 10, 10)}

	results, err := e.Join([]string{"top", "deep"}, geoms, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), results[0].Count)
	assert.Equal(t, 2.0, results[0].Mean)
	assert.Equal(t, 1.0, results[0].Min)
	assert.Equal(t, 3.0, results[0].Max)

	// Raster arrival order must not change the result.
	swapped, err := e.Join([]string{"deep", "top"}, geoms, 0, nil)
	require.NoError(t, err)
	require.Equal(t, results, swapped)
}

func TestJoinSkipsNonIntersectingRaster(t *testing.T) {
	opens := 0
	far := func() (Dataset, error) {
		opens++
		grid := Grid{X0: 1000, Y0: 1010, SX: 1, SY: -1, Width: 10, Height: 10, NoData: -9999}
		return NewMemoryDataset(grid, make([]float64, 100))
	}
	e := memEngine(map[string]func() (Dataset, error){
		"far":  far,
		"near": uniformRaster(5),
	})
	geoms := []orb.Geometry{square(1, 1, 4, 4)}

	results, err := e.Join([]string{"far", "near"}, geoms, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, opens, "non-intersecting raster is opened for indexing only")
	assert.Equal(t, 5.0, results[0].Mean)
	assert.Equal(t, int64(9), results[0].Count)
}

func TestJoinGeometryErrorAborts(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"soil": uniformRaster(7)})
	geoms := []orb.Geometry{square(1, 1, 4, 4), orb.LineString{{0, 0}, {3, 3}}}

	_, err := e.Join([]string{"soil"}, geoms, 0, nil)
	require.ErrorIs(t, err, ErrUnsupportedGeometry)
}

func TestJoinOpenErrorAborts(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"soil": uniformRaster(7)})
	geoms := []orb.Geometry{square(1, 1, 4, 4)}

	_, err := e.Join([]string{"soil", "missing"}, geoms, 0, nil)
	require.ErrorIs(t, err, ErrInvalidData)
	require.ErrorContains(t, err, "missing")
}

func TestJoinBandRange(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"soil": uniformRaster(7)})
	geoms := []orb.Geometry{square(1, 1, 4, 4)}

	_, err := e.Join([]string{"soil"}, geoms, 3, nil)
	require.ErrorIs(t, err, ErrBandRange)
}

func TestJoinBandSelection(t *testing.T) {
	grid := Grid{X0: 0, Y0: 10, SX: 1, SY: -1, Width: 10, Height: 10, NoData: -9999}
	band0 := make([]float64, 100)
	band1 := make([]float64, 100)
	for i := range band0 {
		band0[i] = 1
		band1[i] = 9
	}
	e := memEngine(map[string]func() (Dataset, error){
		"multi": func() (Dataset, error) { return NewMemoryDataset(grid, band0, band1) },
	})
	geoms := []orb.Geometry{square(0, 0, 10, 10)}

	results, err := e.Join([]string{"multi"}, geoms, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.0, results[0].Mean)
}

func TestJoinCanceled(t *testing.T) {
	e := memEngine(map[string]func() (Dataset, error){"soil": uniformRaster(7)})
	geoms := []orb.Geometry{square(0, 0, 10, 10)}

	results, err := e.Join([]string{"soil"}, geoms, 0, func() bool { return true })
	require.ErrorIs(t, err, ErrCanceled)
	assert.Nil(t, results, "partial results are discarded on cancellation")
}

func TestJoinFgridFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soil.fgrid")

	grid := Grid{X0: 0, Y0: 10, SX: 1, SY: -1, Width: 10, Height: 10, NoData: -9999}
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i % 5)
	}
	require.NoError(t, CreateFile(path, grid, values))

	e := NewEngine()
	geoms := []orb.Geometry{square(0, 0, 10, 10)}

	results, err := e.Join([]string{path}, geoms, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), results[0].Count)
	assert.Equal(t, 0.0, results[0].Min)
	assert.Equal(t, 4.0, results[0].Max)
	assert.Equal(t, 2.0, results[0].Mean)
}
