package fractal

import (
	"math"
	"time"
)

// Statistics describes a render pass, or a single tile of one.
//
// Color and brightness bounds are NaN until a value has been seen; depth
// bounds are meaningful only when DepthKnown is set, since tiles colored from
// cached values carry no iteration counts.
type Statistics struct {
	StartTime      time.Time
	FinishTime     time.Time
	ProcessingTime time.Duration

	PointsFinished    int64
	PointsInSet       int64
	PointsOutOfBounds int64
	PointsCached      int64
	TotalIterations   int64

	DepthKnown bool
	MinDepth   int
	MaxDepth   int

	MinColorValue      float64
	MaxColorValue      float64
	MinBrightnessValue float64
	MaxBrightnessValue float64
}

// NewStatistics returns empty statistics.
func NewStatistics() Statistics {
	nan := math.NaN()
	return Statistics{
		MinColorValue:      nan,
		MaxColorValue:      nan,
		MinBrightnessValue: nan,
		MaxBrightnessValue: nan,
	}
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// widen grows [lo, hi] to include [vlo, vhi], ignoring unusable values.
// NaN bounds mean nothing has been seen yet.
func widen(lo, hi *float64, vlo, vhi float64) {
	if usable(vlo) && (math.IsNaN(*lo) || vlo < *lo) {
		*lo = vlo
	}
	if usable(vhi) && (math.IsNaN(*hi) || vhi > *hi) {
		*hi = vhi
	}
}

// Record adds one point. computed is false for points colored from the
// cache; averaging is set for strip average brightness.
func (s *Statistics) Record(p Sample, computed, averaging bool) {
	s.PointsFinished++
	switch {
	case p.InSet():
		s.PointsInSet++
	case p.OutOfBounds():
		s.PointsOutOfBounds++
	default:
		widen(&s.MinColorValue, &s.MaxColorValue, p.Color, p.Color)
		if averaging {
			widen(&s.MinBrightnessValue, &s.MaxBrightnessValue, p.Brightness, p.Brightness)
		}
	}
	if !computed {
		s.PointsCached++
		return
	}
	s.TotalIterations += int64(p.Iterations)
	s.mergeDepth(p.Iterations, p.Iterations)
}

func (s *Statistics) mergeDepth(lo, hi int) {
	if !s.DepthKnown {
		s.MinDepth, s.MaxDepth, s.DepthKnown = lo, hi, true
		return
	}
	s.MinDepth = min(s.MinDepth, lo)
	s.MaxDepth = max(s.MaxDepth, hi)
}

// Merge folds the statistics of a finished tile into s.
func (s *Statistics) Merge(t Statistics) {
	s.ProcessingTime += t.ProcessingTime
	s.PointsFinished += t.PointsFinished
	s.PointsInSet += t.PointsInSet
	s.PointsOutOfBounds += t.PointsOutOfBounds
	s.PointsCached += t.PointsCached
	s.MergeIterations(t)
	widen(&s.MinColorValue, &s.MaxColorValue, t.MinColorValue, t.MaxColorValue)
	widen(&s.MinBrightnessValue, &s.MaxBrightnessValue, t.MinBrightnessValue, t.MaxBrightnessValue)
}

// MergeIterations folds only the iteration count and depth bounds of t
// into s. It credits a tile colored from the cache with the iterations
// that were spent computing it.
func (s *Statistics) MergeIterations(t Statistics) {
	s.TotalIterations += t.TotalIterations
	if t.DepthKnown {
		s.mergeDepth(t.MinDepth, t.MaxDepth)
	}
}

// TotalPoints is the number of samples a complete render of p evaluates.
func TotalPoints(p Params) int64 {
	n := int64(p.Oversampling)
	return int64(p.Width) * int64(p.Height) * n * n
}

// PercentComplete returns finished points as a percentage of TotalPoints(p).
func (s Statistics) PercentComplete(p Params) float64 {
	total := TotalPoints(p)
	if total == 0 {
		return 0
	}
	return float64(s.PointsFinished) / float64(total) * 100
}
