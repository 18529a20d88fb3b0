package zonal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingDataset counts row reads and close calls around a MemoryDataset.
type trackingDataset struct {
	*MemoryDataset
	rowReads int
	closes   int
	readErr  error
}

func (d *trackingDataset) ReadRow(band, row int, dst []float64) error {
	if d.readErr != nil {
		return d.readErr
	}
	d.rowReads++
	return d.MemoryDataset.ReadRow(band, row, dst)
}

func (d *trackingDataset) Close() error {
	d.closes++
	return nil
}

// streamTestDataset is a 4x4 single-band grid over (0,0)-(4,4) with nodata
// -9999 at two cells.
func streamTestDataset(t *testing.T) *trackingDataset {
	t.Helper()
	grid := Grid{X0: 0, Y0: 4, SX: 1, SY: -1, Width: 4, Height: 4, NoData: -9999}
	values := []float64{
		1, 2, 3, 4,
		5, -9999, 7, 8,
		9, 10, 11, -9999,
		13, 14, 15, 16,
	}
	mem, err := NewMemoryDataset(grid, values)
	require.NoError(t, err)
	return &trackingDataset{MemoryDataset: mem}
}

func drain(t *testing.T, st *SampleStream) []ValueSample {
	t.Helper()
	var out []ValueSample
	for st.Next() {
		out = append(out, st.Sample())
	}
	return out
}

func TestSampleStreamDropsNoData(t *testing.T) {
	ds := streamTestDataset(t)
	ranges := []PixelRange{
		{Row: 1, ColStart: 0, ColEnd: 4, Feature: 0},
		{Row: 2, ColStart: 2, ColEnd: 4, Feature: 1},
	}

	st, err := NewSampleStream(ds, 0, ranges, nil)
	require.NoError(t, err)

	samples := drain(t, st)
	require.NoError(t, st.Err())
	assert.Equal(t, []ValueSample{
		{Feature: 0, Value: 5},
		{Feature: 0, Value: 7},
		{Feature: 0, Value: 8},
		{Feature: 1, Value: 11},
	}, samples)
}

func TestSampleStreamOneReadPerRow(t *testing.T) {
	ds := streamTestDataset(t)
	// Unsorted on purpose: three ranges on two rows.
	ranges := []PixelRange{
		{Row: 3, ColStart: 2, ColEnd: 4, Feature: 1},
		{Row: 0, ColStart: 0, ColEnd: 2, Feature: 0},
		{Row: 0, ColStart: 2, ColEnd: 4, Feature: 1},
	}

	st, err := NewSampleStream(ds, 0, ranges, nil)
	require.NoError(t, err)

	samples := drain(t, st)
	require.NoError(t, st.Err())
	assert.Len(t, samples, 6)
	assert.Equal(t, 2, ds.rowReads, "ranges sharing a row must share one read")
}

func TestSampleStreamClosesOnExhaustion(t *testing.T) {
	ds := streamTestDataset(t)
	st, err := NewSampleStream(ds, 0, []PixelRange{{Row: 0, ColStart: 0, ColEnd: 1}}, nil)
	require.NoError(t, err)

	drain(t, st)
	assert.Equal(t, 1, ds.closes)

	// Close after exhaustion is a no-op.
	require.NoError(t, st.Close())
	assert.Equal(t, 1, ds.closes)
	assert.False(t, st.Next(), "stream is single-pass")
}

func TestSampleStreamCancelBetweenRows(t *testing.T) {
	ds := streamTestDataset(t)
	ranges := []PixelRange{
		{Row: 0, ColStart: 0, ColEnd: 4, Feature: 0},
		{Row: 3, ColStart: 0, ColEnd: 4, Feature: 0},
	}

	cancel := func() bool { return ds.rowReads >= 1 }
	st, err := NewSampleStream(ds, 0, ranges, cancel)
	require.NoError(t, err)

	samples := drain(t, st)
	require.NoError(t, st.Err(), "cancellation is not an error")
	assert.Equal(t, 4, len(samples), "only the first row was streamed")
	assert.Equal(t, 1, ds.closes, "handle released on cancellation")
}

func TestSampleStreamReadError(t *testing.T) {
	ds := streamTestDataset(t)
	ds.readErr = errors.New("disk gone")

	st, err := NewSampleStream(ds, 0, []PixelRange{{Row: 0, ColStart: 0, ColEnd: 4}}, nil)
	require.NoError(t, err)

	assert.False(t, st.Next())
	require.ErrorContains(t, st.Err(), "disk gone")
	assert.Equal(t, 1, ds.closes, "handle released on error")
}

func TestSampleStreamBandRange(t *testing.T) {
	ds := streamTestDataset(t)
	_, err := NewSampleStream(ds, 1, []PixelRange{{Row: 0, ColStart: 0, ColEnd: 1}}, nil)
	require.ErrorIs(t, err, ErrBandRange)
	assert.Equal(t, 1, ds.closes, "handle released when construction fails")
}

func TestSampleStreamEmptyRanges(t *testing.T) {
	ds := streamTestDataset(t)
	st, err := NewSampleStream(ds, 0, nil, nil)
	require.NoError(t, err)
	assert.False(t, st.Next())
	require.NoError(t, st.Err())
	assert.Equal(t, 1, ds.closes)
}
