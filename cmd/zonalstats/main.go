// Command zonalstats joins raster grids against a polygon file and prints
// per-feature zonal statistics.
//
// Usage:
//
//	zonalstats -features farmland.fgb [-bbox minx,miny,maxx,maxy] \
//	    [-band 0] [-timeout 30s] [-out results.fgb] raster1.fgrid raster2.fgrid ...
//
// Geometries come from a FlatGeobuf (.fgb) or GeoJSON file and must already
// be in the rasters' coordinate reference system. Without -out, results are
// written to stdout as a JSON array ordered by feature index.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	zonal "github.com/Sanmay-Das/futurefarmnow-sub000"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func main() {
	var (
		featuresPath = flag.String("features", "", "polygon file (.fgb or .geojson)")
		bboxArg      = flag.String("bbox", "", "only features intersecting minx,miny,maxx,maxy (.fgb only)")
		band         = flag.Int("band", 0, "raster band to aggregate")
		timeout      = flag.Duration("timeout", 0, "abort the join after this long (0 = no limit)")
		outPath      = flag.String("out", "", "write results as FlatGeobuf to this path instead of JSON to stdout")
	)
	flag.Parse()

	if *featuresPath == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	geometries, err := loadGeometries(*featuresPath, *bboxArg)
	if err != nil {
		log.Fatalf("load features: %v", err)
	}
	if len(geometries) == 0 {
		log.Fatal("no query geometries")
	}

	var cancel zonal.CancelCheck
	if *timeout > 0 {
		deadline := time.Now().Add(*timeout)
		cancel = func() bool { return time.Now().After(deadline) }
	}

	engine := zonal.NewEngine()
	results, err := engine.Join(flag.Args(), geometries, *band, cancel)
	switch {
	case errors.Is(err, zonal.ErrNoOverlap):
		log.Println("no raster intersects any geometry")
		fmt.Println("null")
		return
	case errors.Is(err, zonal.ErrCanceled):
		log.Fatalf("join canceled after %v", *timeout)
	case err != nil:
		log.Fatalf("join: %v", err)
	}

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		opts := zonal.DefaultWriteOptions()
		opts.Description = fmt.Sprintf("band %d of %s", *band, strings.Join(flag.Args(), ", "))
		if err := zonal.WriteResults(f, geometries, results, opts); err != nil {
			log.Fatalf("write results: %v", err)
		}
		return
	}

	ordered := make([]zonal.Statistics, len(geometries))
	for i := range geometries {
		ordered[i] = results[i]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ordered); err != nil {
		log.Fatalf("encode results: %v", err)
	}
}

func loadGeometries(path, bboxArg string) ([]orb.Geometry, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".fgb":
		if bboxArg != "" {
			bound, err := parseBBox(bboxArg)
			if err != nil {
				return nil, err
			}
			return zonal.SearchFeatures(path, bound)
		}
		return zonal.LoadFeatures(path)

	case ".geojson", ".json":
		if bboxArg != "" {
			return nil, errors.New("-bbox requires a .fgb feature file")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		geometries := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				geometries = append(geometries, f.Geometry)
			}
		}
		return geometries, nil

	default:
		return nil, fmt.Errorf("unsupported feature file type %q", ext)
	}
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
