package zonal

import (
	"fmt"
	"math"
	"sort"
)

// SampleStream lazily yields one ValueSample per valid raster cell covered
// by the given pixel ranges. It follows the bufio.Scanner idiom:
//
//	st, err := NewSampleStream(ds, band, ranges, cancel)
//	for st.Next() {
//	    s := st.Sample()
//	    ...
//	}
//	err = st.Err()
//
// Ranges are sorted by row up front so each raster row is read at most once
// per pass. Cells equal to the grid's nodata sentinel are dropped, never
// emitted. The stream is finite and single-pass; a second pass requires a
// new stream.
//
// The dataset handle is owned by the stream from construction on and is
// released exactly once — on exhaustion, cancellation, error, or Close.
type SampleStream struct {
	ds     Dataset
	band   int
	ranges []PixelRange
	cancel CancelCheck
	nodata float64

	row    []float64 // buffer for the row currently loaded
	rowIdx int       // row currently in the buffer, -1 when none
	ri     int       // index of the range being emitted
	col    int       // next column within that range

	cur    ValueSample
	err    error
	done   bool
	closed bool
}

// NewSampleStream prepares a stream over one raster band. The ranges slice
// is copied; the caller may reuse it. cancel may be nil.
func NewSampleStream(ds Dataset, band int, ranges []PixelRange, cancel CancelCheck) (*SampleStream, error) {
	if band < 0 || band >= ds.Bands() {
		ds.Close()
		return nil, fmt.Errorf("%w: band %d of %d", ErrBandRange, band, ds.Bands())
	}

	sorted := make([]PixelRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].ColStart < sorted[j].ColStart
	})

	return &SampleStream{
		ds:     ds,
		band:   band,
		ranges: sorted,
		cancel: cancel,
		nodata: ds.Grid().NoData,
		row:    make([]float64, ds.Grid().Width),
		rowIdx: -1,
	}, nil
}

// Next advances to the next valid sample. It returns false when the stream
// is exhausted, cancelled, or failed; consult Err afterwards.
func (st *SampleStream) Next() bool {
	if st.done {
		return false
	}

	for st.ri < len(st.ranges) {
		r := st.ranges[st.ri]

		if st.col < r.ColStart {
			st.col = r.ColStart
		}
		if st.col >= r.ColEnd {
			st.ri++
			st.col = 0
			continue
		}

		if r.Row != st.rowIdx {
			// Cancellation is polled between rows only; a row in flight
			// always finishes.
			if st.cancel != nil && st.cancel() {
				st.finish()
				return false
			}
			if err := st.ds.ReadRow(st.band, r.Row, st.row); err != nil {
				st.err = err
				st.finish()
				return false
			}
			st.rowIdx = r.Row
		}

		v := st.row[st.col]
		st.col++
		if st.isNoData(v) {
			continue
		}
		st.cur = ValueSample{Feature: r.Feature, Value: v}
		return true
	}

	st.finish()
	return false
}

// Sample returns the sample produced by the last successful Next.
func (st *SampleStream) Sample() ValueSample { return st.cur }

// Err returns the first error encountered while streaming. Exhaustion and
// cancellation are not errors.
func (st *SampleStream) Err() error { return st.err }

// Close releases the underlying dataset handle. It is idempotent and safe
// to defer alongside normal exhaustion.
func (st *SampleStream) Close() error {
	if st.closed {
		return nil
	}
	st.done = true
	st.closed = true
	return st.ds.Close()
}

func (st *SampleStream) finish() {
	st.done = true
	if !st.closed {
		st.closed = true
		if err := st.ds.Close(); err != nil && st.err == nil {
			st.err = err
		}
	}
}

func (st *SampleStream) isNoData(v float64) bool {
	if math.IsNaN(st.nodata) {
		return math.IsNaN(v)
	}
	return v == st.nodata
}
