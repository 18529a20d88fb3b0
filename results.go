package zonal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// WriteOptions configures result serialization.
type WriteOptions struct {
	Name         string // layer name
	Description  string // layer description
	IncludeIndex bool   // include a spatial index
	CRSCode      int    // EPSG code, 0 to omit
}

// DefaultWriteOptions returns the options used when WriteResults gets nil.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{Name: "zonal_statistics", IncludeIndex: true}
}

// statColumns is the fixed property schema of a results layer, in the same
// order as the JSON representation. count is integral; everything else is a
// double. NaN fields are written as nulls.
var statColumns = []struct {
	name string
	typ  flattypes.ColumnType
}{
	{"min", flattypes.ColumnTypeDouble},
	{"max", flattypes.ColumnTypeDouble},
	{"median", flattypes.ColumnTypeDouble},
	{"sum", flattypes.ColumnTypeDouble},
	{"mode", flattypes.ColumnTypeDouble},
	{"stddev", flattypes.ColumnTypeDouble},
	{"count", flattypes.ColumnTypeLong},
	{"mean", flattypes.ColumnTypeDouble},
	{"lowerquart", flattypes.ColumnTypeDouble},
	{"upperquart", flattypes.ColumnTypeDouble},
}

// WriteResults serializes a join result as a FlatGeobuf feature collection:
// one feature per input geometry, with that feature's statistics as typed
// property columns. This is the boundary a catalogue or HTTP layer uses to
// hand results back to mapping clients.
func WriteResults(w io.Writer, geometries []orb.Geometry, results map[int]Statistics, opts *WriteOptions) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	if len(geometries) == 0 {
		return fmt.Errorf("%w: no geometries", ErrInvalidData)
	}

	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(resultLayerType(geometries))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	columns := make([]*writer.Column, 0, len(statColumns))
	for _, c := range statColumns {
		col := writer.NewColumn(builder)
		col.SetName(c.name)
		col.SetTitle(c.name)
		col.SetType(c.typ)
		col.SetNullable(true)
		columns = append(columns, col)
	}
	header.SetColumns(columns)

	if opts.CRSCode > 0 {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(int32(opts.CRSCode))
		header.SetCrs(crs)
	}

	gen := &resultGenerator{geometries: geometries, results: results}
	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	_, err := fgbWriter.Write(w)
	return err
}

// resultLayerType picks the layer geometry type: uniform when all features
// agree, unknown otherwise.
func resultLayerType(geometries []orb.Geometry) flattypes.GeometryType {
	layer := arealToFGBType(geometries[0])
	for _, g := range geometries[1:] {
		if arealToFGBType(g) != layer {
			return flattypes.GeometryTypeUnknown
		}
	}
	return layer
}

func arealToFGBType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Polygon, orb.Ring, orb.Bound:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// resultGenerator feeds the FlatGeobuf writer one feature per geometry, in
// feature-index order.
type resultGenerator struct {
	geometries []orb.Geometry
	results    map[int]Statistics
	index      int
}

func (g *resultGenerator) Generate() *writer.Feature {
	for g.index < len(g.geometries) {
		feature := g.index
		geom := g.geometries[feature]
		g.index++

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := arealToFGB(geom, builder)
		if fgbGeom == nil {
			continue
		}

		f := writer.NewFeature(builder)
		f.SetGeometry(fgbGeom)
		stats, ok := g.results[feature]
		if !ok {
			stats = EmptyStatistics()
		}
		f.SetProperties(encodeStatsProperties(stats))
		return f
	}
	return nil
}

// arealToFGB converts an areal orb geometry to a FlatGeobuf writer
// geometry. Unsupported types yield nil and the feature is skipped.
func arealToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Ring:
		geom = orb.Polygon{v}
	case orb.Bound:
		geom = orb.Polygon{v.ToRing()}
	}

	switch v := geom.(type) {
	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonToXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	totalPoints := 0
	for _, ring := range poly {
		totalPoints += len(ring)
	}

	xy := make([]float64, 0, totalPoints*2)
	ends := make([]uint32, 0, len(poly))

	cumulative := uint32(0)
	for _, ring := range poly {
		for _, p := range ring {
			xy = append(xy, p[0], p[1])
		}
		cumulative += uint32(len(ring))
		ends = append(ends, cumulative)
	}

	return xy, ends
}

// encodeStatsProperties encodes the statistics in the FlatGeobuf property
// wire format: per value, a little-endian uint16 column index followed by
// the raw little-endian value. NaN fields are simply absent (null).
func encodeStatsProperties(s Statistics) []byte {
	fields := [...]float64{
		s.Min, s.Max, s.Median, s.Sum, s.Mode,
		s.StdDev, 0, s.Mean, s.LowerQuart, s.UpperQuart,
	}

	var buf bytes.Buffer
	for i, c := range statColumns {
		if c.typ == flattypes.ColumnTypeLong {
			writeColumnIndex(&buf, i)
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(s.Count))
			buf.Write(b[:])
			continue
		}
		if math.IsNaN(fields[i]) {
			continue
		}
		writeColumnIndex(&buf, i)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(fields[i]))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func writeColumnIndex(buf *bytes.Buffer, i int) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(i))
	buf.Write(b[:])
}
