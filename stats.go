package zonal

import (
	"encoding/json"
	"math"
	"sort"
)

// ExactPathLimit is the per-feature sample count up to which the aggregator
// keeps every value and computes order statistics from a full sort. Beyond
// it the feature switches to single-pass moment accumulation and the order
// statistics are reported as NaN.
const ExactPathLimit = 5_000_000

// Statistics summarizes the raster cell values covered by one feature.
//
// Two historical quirks are kept for wire compatibility rather than fixed:
// on the exact path StdDev is the mean absolute deviation from the mean,
// and on the streaming path it is the population variance. Quartiles are
// the sorted elements at floor(n/4) and floor(3n/4), not interpolated
// percentiles.
type Statistics struct {
	Min        float64
	Max        float64
	Median     float64
	Sum        float64
	Mode       float64
	StdDev     float64
	Mean       float64
	LowerQuart float64
	UpperQuart float64
	Count      int64
}

// EmptyStatistics returns the sentinel for "no usable samples": count zero,
// every numeric field NaN. It is a valid result, not an error.
func EmptyStatistics() Statistics {
	nan := math.NaN()
	return Statistics{
		Min: nan, Max: nan, Median: nan, Sum: nan, Mode: nan,
		StdDev: nan, Mean: nan, LowerQuart: nan, UpperQuart: nan,
	}
}

// IsEmpty reports whether s is the empty sentinel.
func (s Statistics) IsEmpty() bool { return s.Count == 0 }

// statisticsJSON mirrors the JSON shape consumed by the HTTP layer.
// NaN has no JSON encoding, so NaN fields serialize as null.
type statisticsJSON struct {
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Median     *float64 `json:"median"`
	Sum        *float64 `json:"sum"`
	Mode       *float64 `json:"mode"`
	StdDev     *float64 `json:"stddev"`
	Count      int64    `json:"count"`
	Mean       *float64 `json:"mean"`
	LowerQuart *float64 `json:"lowerquart"`
	UpperQuart *float64 `json:"upperquart"`
}

func jsonNumber(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// MarshalJSON serializes the statistics with the lower-case field names the
// downstream serializer expects, mapping NaN to null.
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(statisticsJSON{
		Min:        jsonNumber(s.Min),
		Max:        jsonNumber(s.Max),
		Median:     jsonNumber(s.Median),
		Sum:        jsonNumber(s.Sum),
		Mode:       jsonNumber(s.Mode),
		StdDev:     jsonNumber(s.StdDev),
		Count:      s.Count,
		Mean:       jsonNumber(s.Mean),
		LowerQuart: jsonNumber(s.LowerQuart),
		UpperQuart: jsonNumber(s.UpperQuart),
	})
}

// UnmarshalJSON restores a Statistics from its JSON form, mapping null back
// to NaN.
func (s *Statistics) UnmarshalJSON(data []byte) error {
	var j statisticsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	restore := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	*s = Statistics{
		Min:        restore(j.Min),
		Max:        restore(j.Max),
		Median:     restore(j.Median),
		Sum:        restore(j.Sum),
		Mode:       restore(j.Mode),
		StdDev:     restore(j.StdDev),
		Count:      j.Count,
		Mean:       restore(j.Mean),
		LowerQuart: restore(j.LowerQuart),
		UpperQuart: restore(j.UpperQuart),
	}
	return nil
}

// Accumulator is the associative per-feature running state: moments are
// always maintained; the raw values are buffered only while the sample
// count stays within ExactPathLimit. Accumulators combine with Merge, which
// is what permits partitioning the sample stream across workers.
type Accumulator struct {
	count    int64
	min, max float64
	sum      float64
	sum2     float64
	values   []float64
	overflow bool
}

// Add folds one value into the accumulator.
func (a *Accumulator) Add(v float64) {
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	a.count++
	a.sum += v
	a.sum2 += v * v

	if !a.overflow {
		a.values = append(a.values, v)
		if a.count > ExactPathLimit {
			a.values = nil
			a.overflow = true
		}
	}
}

// Count returns the number of samples folded in so far.
func (a *Accumulator) Count() int64 { return a.count }

// Merge folds another accumulator into a. The other accumulator must not be
// used afterwards.
func (a *Accumulator) Merge(b *Accumulator) {
	if b.count == 0 {
		return
	}
	if a.count == 0 {
		a.min, a.max = b.min, b.max
	} else {
		if b.min < a.min {
			a.min = b.min
		}
		if b.max > a.max {
			a.max = b.max
		}
	}
	a.count += b.count
	a.sum += b.sum
	a.sum2 += b.sum2

	if a.overflow || b.overflow || a.count > ExactPathLimit {
		a.values = nil
		a.overflow = true
		return
	}
	a.values = append(a.values, b.values...)
}

// Statistics finalizes the accumulator. Zero samples short-circuit to the
// empty sentinel before any arithmetic, so division by zero never happens.
func (a *Accumulator) Statistics() Statistics {
	if a.count == 0 {
		return EmptyStatistics()
	}
	if a.overflow {
		return a.streamingStatistics()
	}
	return a.exactStatistics()
}

// exactStatistics sorts the buffered values and reads the order statistics
// off the sorted array. The result depends only on the multiset of values,
// never on arrival order.
func (a *Accumulator) exactStatistics() Statistics {
	sorted := a.values
	sort.Float64s(sorted)
	n := len(sorted)

	mean := a.sum / float64(n)

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	// Longest run of equal adjacent values; ties keep the earliest run.
	mode := sorted[0]
	bestLen, runLen := 1, 1
	for i := 1; i < n; i++ {
		if sorted[i] == sorted[i-1] {
			runLen++
			if runLen > bestLen {
				bestLen = runLen
				mode = sorted[i]
			}
		} else {
			runLen = 1
		}
	}

	// Historical formula: mean absolute deviation, reported as stddev.
	var absDev float64
	for _, v := range sorted {
		absDev += math.Abs(v - mean)
	}

	return Statistics{
		Min:        sorted[0],
		Max:        sorted[n-1],
		Median:     median,
		Sum:        a.sum,
		Mode:       mode,
		StdDev:     absDev / float64(n),
		Mean:       mean,
		LowerQuart: sorted[n/4],
		UpperQuart: sorted[3*n/4],
		Count:      int64(n),
	}
}

// streamingStatistics reports what a single pass can know. Median, mode and
// quartiles are NaN: the accuracy/memory trade-off for very large features.
func (a *Accumulator) streamingStatistics() Statistics {
	nan := math.NaN()
	count := float64(a.count)
	return Statistics{
		Min:    a.min,
		Max:    a.max,
		Median: nan,
		Sum:    a.sum,
		Mode:   nan,
		// Historical formula: population variance, reported as stddev.
		StdDev:     (a.sum2 - a.sum*a.sum/count) / count,
		Mean:       a.sum / count,
		LowerQuart: nan,
		UpperQuart: nan,
		Count:      a.count,
	}
}

// Aggregator groups a merged sample stream by feature index and finalizes
// one Statistics per feature. Arrival order is irrelevant: exact-path
// results are read off the sorted buffer and streaming-path results off
// commutative moments.
type Aggregator struct {
	accs map[int]*Accumulator
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{accs: make(map[int]*Accumulator)}
}

// Add folds one sample into its feature's accumulator.
func (ag *Aggregator) Add(s ValueSample) {
	acc, ok := ag.accs[s.Feature]
	if !ok {
		acc = &Accumulator{}
		ag.accs[s.Feature] = acc
	}
	acc.Add(s.Value)
}

// Consume drains a sample stream into the aggregator and returns the
// stream's error, if any. The stream is closed either way.
func (ag *Aggregator) Consume(st *SampleStream) error {
	defer st.Close()
	for st.Next() {
		ag.Add(st.Sample())
	}
	return st.Err()
}

// Merge folds another aggregator's accumulators into ag, enabling
// partition-then-merge parallel aggregation. The other aggregator must not
// be used afterwards.
func (ag *Aggregator) Merge(other *Aggregator) {
	for feature, acc := range other.accs {
		mine, ok := ag.accs[feature]
		if !ok {
			ag.accs[feature] = acc
			continue
		}
		mine.Merge(acc)
	}
}

// Finalize produces one Statistics per feature index in [0, featureCount).
// Features that never produced a sample get the empty sentinel.
func (ag *Aggregator) Finalize(featureCount int) map[int]Statistics {
	out := make(map[int]Statistics, featureCount)
	for i := 0; i < featureCount; i++ {
		if acc, ok := ag.accs[i]; ok {
			out[i] = acc.Statistics()
		} else {
			out[i] = EmptyStatistics()
		}
	}
	return out
}

// Aggregate is the one-shot form: group samples by feature and compute each
// feature's statistics.
func Aggregate(samples []ValueSample, featureCount int) map[int]Statistics {
	ag := NewAggregator()
	for _, s := range samples {
		ag.Add(s)
	}
	return ag.Finalize(featureCount)
}
