// Package trend classifies duration sequences with the fixed descriptive
// heuristics the analyzer reports. The thresholds are part of the output
// contract; do not tune them without updating the tests.
package trend

// Pattern is a trend classification.
type Pattern string

const (
	PatternStable       Pattern = "stable"
	PatternDegrading    Pattern = "degrading"
	PatternImproving    Pattern = "improving"
	PatternUnstable     Pattern = "unstable"
	PatternAccumulating Pattern = "accumulating"
	PatternDecreasing   Pattern = "decreasing"

	// PatternInsufficientData is a sentinel, not an error: fewer than
	// three samples. Callers must check it before reading statistics.
	PatternInsufficientData Pattern = "insufficient_data"
)

// Split selects how Classify partitions the sequence into first and last
// segments.
type Split string

const (
	SplitThirds Split = "thirds"
	SplitHalves Split = "halves"
)

// Result carries the classification plus the statistics backing it, for
// diagnostic display. Values are in the unit of the input (milliseconds
// everywhere in this repo).
type Result struct {
	Pattern       Pattern
	Samples       int
	MeanFirst     float64
	MeanLast      float64
	PercentChange float64
	Min           float64
	Max           float64
	Range         float64

	// IncreasingRatio is only populated by ClassifyAccumulation.
	IncreasingRatio float64
}

// Classify partitions values per split, compares segment means, and maps
// the percent change onto a pattern:
//
//	> +50%          degrading
//	< -20%          improving
//	|change| > 20%  unstable
//	otherwise       stable
func Classify(values []float64, split Split) Result {
	if len(values) < 3 {
		return Result{Pattern: PatternInsufficientData, Samples: len(values)}
	}

	n := len(values)
	k := n / 3
	if split == SplitHalves {
		k = n / 2
	}
	meanFirst := mean(values[:k])
	meanLast := mean(values[n-k:])

	pct := 0.0
	if meanFirst != 0 {
		pct = (meanLast - meanFirst) / meanFirst * 100
	}

	pattern := PatternStable
	switch {
	case pct > 50:
		pattern = PatternDegrading
	case pct < -20:
		pattern = PatternImproving
	case pct > 20:
		// The negative band below -20 is already claimed by improving.
		pattern = PatternUnstable
	}

	lo, hi := bounds(values)
	return Result{
		Pattern:       pattern,
		Samples:       n,
		MeanFirst:     meanFirst,
		MeanLast:      meanLast,
		PercentChange: pct,
		Min:           lo,
		Max:           hi,
		Range:         hi - lo,
	}
}

// ClassifyAccumulation is the gap-sequence variant: it looks at the
// fraction of adjacent pairs that strictly increased.
//
//	ratio > 0.6          accumulating
//	ratio < 0.4          decreasing
//	range > 2000ms       unstable
//	otherwise            stable
func ClassifyAccumulation(values []float64) Result {
	if len(values) < 3 {
		return Result{Pattern: PatternInsufficientData, Samples: len(values)}
	}

	increasing := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			increasing++
		}
	}
	ratio := float64(increasing) / float64(len(values)-1)

	lo, hi := bounds(values)
	pattern := PatternStable
	switch {
	case ratio > 0.6:
		pattern = PatternAccumulating
	case ratio < 0.4:
		pattern = PatternDecreasing
	case hi-lo > 2000:
		pattern = PatternUnstable
	}

	half := len(values) / 2
	return Result{
		Pattern:         pattern,
		Samples:         len(values),
		MeanFirst:       mean(values[:half]),
		MeanLast:        mean(values[half:]),
		Min:             lo,
		Max:             hi,
		Range:           hi - lo,
		IncreasingRatio: ratio,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
