package zonal

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Grid describes the georeferencing of a raster: where cell (row 0, col 0)
// sits in world coordinates, how big a cell is, how many cells there are,
// and which value means "no measurement."
//
// A Grid is borrowed from the raster-reading collaborator and treated as
// immutable for the duration of a join.
type Grid struct {
	X0, Y0 float64 // world coordinates of the outer corner of cell (0, 0)
	SX     float64 // cell width in world units; must be > 0
	SY     float64 // cell height in world units; negative for north-up rasters
	Width  int     // cells per row
	Height int     // rows
	NoData float64 // sentinel excluded from all statistics; may be NaN
}

// GridFromGeoTransform builds a Grid from the six-coefficient affine
// transform convention used by GDAL-style raster metadata:
// {x0, sx, rot, y0, rot, sy}. Rotated grids are not supported.
func GridFromGeoTransform(gt [6]float64, width, height int, nodata float64) (Grid, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return Grid{}, fmt.Errorf("%w: rotated geotransform", ErrInvalidGrid)
	}
	g := Grid{
		X0:     gt[0],
		Y0:     gt[3],
		SX:     gt[1],
		SY:     gt[5],
		Width:  width,
		Height: height,
		NoData: nodata,
	}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// GeoTransform returns the grid's affine transform in the GDAL
// six-coefficient convention.
func (g Grid) GeoTransform() [6]float64 {
	return [6]float64{g.X0, g.SX, 0, g.Y0, 0, g.SY}
}

// Validate reports whether the grid has positive dimensions and usable
// cell sizes.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d cells", ErrInvalidGrid, g.Width, g.Height)
	}
	if g.SX <= 0 {
		return fmt.Errorf("%w: cell width %v", ErrInvalidGrid, g.SX)
	}
	if g.SY == 0 {
		return fmt.Errorf("%w: zero cell height", ErrInvalidGrid)
	}
	return nil
}

// Bound returns the grid's extent in world coordinates. It handles both
// north-up (SY < 0) and south-up rasters.
func (g Grid) Bound() orb.Bound {
	x1 := g.X0 + float64(g.Width)*g.SX
	y1 := g.Y0 + float64(g.Height)*g.SY

	b := orb.Bound{Min: orb.Point{g.X0, g.Y0}, Max: orb.Point{g.X0, g.Y0}}
	if x1 < b.Min[0] {
		b.Min[0] = x1
	} else if x1 > b.Max[0] {
		b.Max[0] = x1
	}
	if y1 < b.Min[1] {
		b.Min[1] = y1
	} else if y1 > b.Max[1] {
		b.Max[1] = y1
	}
	return b
}

// RowCenterY returns the world Y coordinate of the given row's centerline.
func (g Grid) RowCenterY(row int) float64 {
	return g.Y0 + (float64(row)+0.5)*g.SY
}

// ColCenterX returns the world X coordinate of the given column's center.
func (g Grid) ColCenterX(col int) float64 {
	return g.X0 + (float64(col)+0.5)*g.SX
}

// CellCenter returns the world coordinates of a cell's center point.
func (g Grid) CellCenter(row, col int) orb.Point {
	return orb.Point{g.ColCenterX(col), g.RowCenterY(row)}
}
