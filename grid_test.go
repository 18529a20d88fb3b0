package zonal

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func TestGridBoundNorthUp(t *testing.T) {
	g := testGrid()
	expected := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	if g.Bound() != expected {
		t.Errorf("expected %v, got %v", expected, g.Bound())
	}
}

func TestGridBoundSouthUp(t *testing.T) {
	g := Grid{X0: 5, Y0: 5, SX: 2, SY: 1, Width: 4, Height: 3}
	expected := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{13, 8}}
	if g.Bound() != expected {
		t.Errorf("expected %v, got %v", expected, g.Bound())
	}
}

func TestGridCellCenter(t *testing.T) {
	g := testGrid()
	tests := []struct {
		row, col int
		expected orb.Point
	}{
		{0, 0, orb.Point{0.5, 9.5}},
		{9, 9, orb.Point{9.5, 0.5}},
		{5, 2, orb.Point{2.5, 4.5}},
	}
	for _, tt := range tests {
		if got := g.CellCenter(tt.row, tt.col); got != tt.expected {
			t.Errorf("CellCenter(%d,%d): expected %v, got %v", tt.row, tt.col, tt.expected, got)
		}
	}
}

func TestGeoTransformRoundTrip(t *testing.T) {
	g := testGrid()
	rebuilt, err := GridFromGeoTransform(g.GeoTransform(), g.Width, g.Height, g.NoData)
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt != g {
		t.Errorf("expected %+v, got %+v", g, rebuilt)
	}
}

func TestGridFromGeoTransformRejectsRotation(t *testing.T) {
	_, err := GridFromGeoTransform([6]float64{0, 1, 0.1, 10, 0, -1}, 10, 10, -9999)
	if !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("expected ErrInvalidGrid, got %v", err)
	}
}

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
		ok   bool
	}{
		{"valid", testGrid(), true},
		{"zero width", Grid{SX: 1, SY: -1, Width: 0, Height: 5}, false},
		{"zero height", Grid{SX: 1, SY: -1, Width: 5, Height: 0}, false},
		{"negative sx", Grid{SX: -1, SY: -1, Width: 5, Height: 5}, false},
		{"zero sy", Grid{SX: 1, SY: 0, Width: 5, Height: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("expected ErrInvalidGrid, got %v", err)
			}
		})
	}
}
