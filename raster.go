package zonal

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Dataset is the raster-reading collaborator's boundary: a georeferenced
// grid whose rows can be read one at a time, per band. Implementations need
// not be safe for concurrent use; the engine reads each dataset from a
// single goroutine.
type Dataset interface {
	Grid() Grid
	Bands() int
	// ReadRow fills dst (length Grid().Width) with one row of one band.
	ReadRow(band, row int, dst []float64) error
	Close() error
}

// OpenFunc resolves a raster path into a Dataset. The default is OpenFile.
type OpenFunc func(path string) (Dataset, error)

// MemoryDataset holds a raster entirely in memory, one row-major value
// slice per band. It is handy for tests and for callers that already have
// decoded cell values.
type MemoryDataset struct {
	grid  Grid
	bands [][]float64
}

// NewMemoryDataset wraps in-memory band values. Every band must hold
// exactly Width*Height values in row-major order.
func NewMemoryDataset(grid Grid, bands ...[]float64) (*MemoryDataset, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrInvalidData)
	}
	want := grid.Width * grid.Height
	for i, b := range bands {
		if len(b) != want {
			return nil, fmt.Errorf("%w: band %d has %d values, want %d", ErrInvalidData, i, len(b), want)
		}
	}
	return &MemoryDataset{grid: grid, bands: bands}, nil
}

func (d *MemoryDataset) Grid() Grid { return d.grid }
func (d *MemoryDataset) Bands() int { return len(d.bands) }

func (d *MemoryDataset) ReadRow(band, row int, dst []float64) error {
	if band < 0 || band >= len(d.bands) {
		return fmt.Errorf("%w: band %d of %d", ErrBandRange, band, len(d.bands))
	}
	if row < 0 || row >= d.grid.Height {
		return fmt.Errorf("%w: row %d of %d", ErrInvalidData, row, d.grid.Height)
	}
	copy(dst, d.bands[band][row*d.grid.Width:(row+1)*d.grid.Width])
	return nil
}

func (d *MemoryDataset) Close() error { return nil }

// fgrid is a minimal flat binary raster format: a fixed little-endian
// header followed by band-major, row-major float64 cell values. It exists
// so the engine has a concrete file-backed Dataset without pulling in a
// cgo GDAL binding; richer formats plug in through OpenFunc.
var fgridMagic = [4]byte{'F', 'G', 'R', 'D'}

const fgridVersion = 1

type fgridHeader struct {
	Magic   [4]byte
	Version uint32
	Width   int32
	Height  int32
	Bands   int32
	X0, Y0  float64
	SX, SY  float64
	NoData  float64
}

var fgridHeaderSize = int64(binary.Size(fgridHeader{}))

// fileDataset reads fgrid rows on demand; only the requested row windows
// ever leave the disk.
type fileDataset struct {
	f     *os.File
	grid  Grid
	bands int
	buf   []byte
}

// OpenFile opens an fgrid raster file. The returned Dataset holds an open
// file handle until Close is called.
func OpenFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zonal: open raster: %w", err)
	}

	var h fgridHeader
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: short header", ErrInvalidData, path)
	}
	if h.Magic != fgridMagic || h.Version != fgridVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %s: not an fgrid file", ErrInvalidData, path)
	}
	if h.Bands <= 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %d bands", ErrInvalidData, path, h.Bands)
	}

	grid := Grid{
		X0: h.X0, Y0: h.Y0,
		SX: h.SX, SY: h.SY,
		Width:  int(h.Width),
		Height: int(h.Height),
		NoData: h.NoData,
	}
	if err := grid.Validate(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &fileDataset{
		f:     f,
		grid:  grid,
		bands: int(h.Bands),
		buf:   make([]byte, grid.Width*8),
	}, nil
}

func (d *fileDataset) Grid() Grid { return d.grid }
func (d *fileDataset) Bands() int { return d.bands }

func (d *fileDataset) ReadRow(band, row int, dst []float64) error {
	if band < 0 || band >= d.bands {
		return fmt.Errorf("%w: band %d of %d", ErrBandRange, band, d.bands)
	}
	if row < 0 || row >= d.grid.Height {
		return fmt.Errorf("%w: row %d of %d", ErrInvalidData, row, d.grid.Height)
	}

	off := fgridHeaderSize + int64(band*d.grid.Height+row)*int64(d.grid.Width)*8
	if _, err := d.f.ReadAt(d.buf, off); err != nil {
		return fmt.Errorf("zonal: read raster row %d: %w", row, err)
	}
	for i := 0; i < d.grid.Width && i < len(dst); i++ {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(d.buf[i*8:]))
	}
	return nil
}

func (d *fileDataset) Close() error { return d.f.Close() }

// CreateFile writes an fgrid raster file from in-memory band values, each
// Width*Height row-major float64s.
func CreateFile(path string, grid Grid, bands ...[]float64) error {
	mem, err := NewMemoryDataset(grid, bands...)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("zonal: create raster: %w", err)
	}
	defer f.Close()

	h := fgridHeader{
		Magic:   fgridMagic,
		Version: fgridVersion,
		Width:   int32(grid.Width),
		Height:  int32(grid.Height),
		Bands:   int32(len(mem.bands)),
		X0:      grid.X0, Y0: grid.Y0,
		SX: grid.SX, SY: grid.SY,
		NoData: grid.NoData,
	}
	if err := binary.Write(f, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("zonal: write raster header: %w", err)
	}

	buf := make([]byte, grid.Width*8)
	for _, band := range mem.bands {
		for row := 0; row < grid.Height; row++ {
			vals := band[row*grid.Width : (row+1)*grid.Width]
			for i, v := range vals {
				binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
			}
			if _, err := f.Write(buf); err != nil {
				return fmt.Errorf("zonal: write raster row: %w", err)
			}
		}
	}
	return f.Sync()
}
