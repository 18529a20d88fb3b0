package zonal

import (
	"fmt"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
)

// LoadFeatures reads every polygon from a FlatGeobuf file, in feature
// order, as the geometry array for a join. The file must carry a spatial
// index (the FlatGeobuf default).
func LoadFeatures(path string) ([]orb.Geometry, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("zonal: open features %s: %w", path, err)
	}
	return readFeatures(fgb, nil)
}

// LoadFeaturesData is LoadFeatures over an in-memory FlatGeobuf buffer.
func LoadFeaturesData(data []byte) ([]orb.Geometry, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("zonal: read features: %w", err)
	}
	return readFeatures(fgb, nil)
}

// SearchFeatures reads the polygons whose bounding boxes intersect bound,
// using the file's spatial index.
func SearchFeatures(path string, bound orb.Bound) ([]orb.Geometry, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("zonal: open features %s: %w", path, err)
	}
	return readFeatures(fgb, &bound)
}

func readFeatures(fgb *flatgeobuf.FlatGeoBuf, bound *orb.Bound) ([]orb.Geometry, error) {
	h := fgb.Header()
	if h == nil || h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	if bound == nil {
		// Full read: search the header envelope.
		if h.EnvelopeLength() < 4 {
			return []orb.Geometry{}, nil
		}
		bound = &orb.Bound{
			Min: orb.Point{h.Envelope(0), h.Envelope(1)},
			Max: orb.Point{h.Envelope(2), h.Envelope(3)},
		}
	}

	features, err := fgb.Search(bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
	if err != nil {
		return nil, fmt.Errorf("zonal: search features: %w", err)
	}

	geoms := make([]orb.Geometry, 0, len(features))
	for i, f := range features {
		var geomObj flattypes.Geometry
		fg := f.Geometry(&geomObj)
		if fg == nil {
			continue
		}
		geom, err := arealFromFGB(fg, h.GeometryType())
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		geoms = append(geoms, geom)
	}
	return geoms, nil
}

// arealFromFGB decodes a FlatGeobuf geometry into an orb polygon or
// multi-polygon. A geometry without its own type falls back to the layer
// type from the header. Non-areal geometries are rejected: this engine only
// joins against footprints with interior area.
func arealFromFGB(fg *flattypes.Geometry, layerType flattypes.GeometryType) (orb.Geometry, error) {
	geomType := fg.Type()
	if geomType == flattypes.GeometryTypeUnknown {
		geomType = layerType
	}

	switch geomType {
	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(fg), nil
	case flattypes.GeometryTypeMultiPolygon:
		return multiPolygonFromParts(fg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry,
			flattypes.EnumNamesGeometryType[geomType])
	}
}

// polygonFromXYEnds rebuilds a polygon from the flat XY array, splitting
// rings at the ends offsets. Without an ends array all points form one
// ring.
func polygonFromXYEnds(fg *flattypes.Geometry) orb.Polygon {
	xyLen := fg.XyLength()
	if xyLen < 2 {
		return orb.Polygon{}
	}

	endsLen := fg.EndsLength()
	if endsLen == 0 {
		ring := make(orb.Ring, 0, xyLen/2)
		for i := 0; i+1 < xyLen; i += 2 {
			ring = append(ring, orb.Point{fg.Xy(i), fg.Xy(i + 1)})
		}
		return orb.Polygon{ring}
	}

	poly := make(orb.Polygon, 0, endsLen)
	start := uint32(0)
	for i := 0; i < endsLen; i++ {
		end := fg.Ends(i)
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			idx := int(j) * 2
			if idx+1 < xyLen {
				ring = append(ring, orb.Point{fg.Xy(idx), fg.Xy(idx + 1)})
			}
		}
		poly = append(poly, ring)
		start = end
	}
	return poly
}

func multiPolygonFromParts(fg *flattypes.Geometry) orb.MultiPolygon {
	partsLen := fg.PartsLength()
	if partsLen == 0 {
		// A multi-polygon written without parts degenerates to one polygon.
		poly := polygonFromXYEnds(fg)
		if len(poly) > 0 {
			return orb.MultiPolygon{poly}
		}
		return orb.MultiPolygon{}
	}

	mp := make(orb.MultiPolygon, 0, partsLen)
	for i := 0; i < partsLen; i++ {
		var part flattypes.Geometry
		if fg.Parts(&part, i) {
			poly := polygonFromXYEnds(&part)
			if len(poly) > 0 {
				mp = append(mp, poly)
			}
		}
	}
	return mp
}
