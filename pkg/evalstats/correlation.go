// Package evalstats aggregates eval scores: per-run-config score means with
// completeness tracking, and correlation of judge scores against human
// ratings across eval configs.
package evalstats

import (
	"math"
	"sort"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// NormalizeScore maps a raw score onto the unit interval according to its
// score type: five_star covers 1..5, pass_fail 0..1, pass_fail_critical
// -1..1. Custom scores pass through unchanged.
func NormalizeScore(value float64, scoreType datamodel.ScoreType) float64 {
	switch scoreType {
	case datamodel.ScoreTypeFiveStar:
		return (value - 1) / 4
	case datamodel.ScoreTypePassFail:
		return clamp01(value)
	case datamodel.ScoreTypePassFailCritical:
		return (value + 1) / 2
	default:
		return value
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScorePair is one (judge, human) observation for a single score key.
type ScorePair struct {
	Model           float64
	Human           float64
	NormalizedModel float64
	NormalizedHuman float64
}

// NewScorePair builds a pair with both values normalized by the score type.
func NewScorePair(model, human float64, scoreType datamodel.ScoreType) ScorePair {
	return ScorePair{
		Model:           model,
		Human:           human,
		NormalizedModel: NormalizeScore(model, scoreType),
		NormalizedHuman: NormalizeScore(human, scoreType),
	}
}

// CorrelationResult summarizes how closely judge scores track human scores.
// The correlation coefficients are nil when undefined: fewer than two pairs,
// or a side with zero variance.
type CorrelationResult struct {
	MeanAbsoluteError           float64  `json:"mean_absolute_error"`
	MeanNormalizedAbsoluteError float64  `json:"mean_normalized_absolute_error"`
	MeanSquaredError            float64  `json:"mean_squared_error"`
	MeanNormalizedSquaredError  float64  `json:"mean_normalized_squared_error"`
	Pearson                     *float64 `json:"pearson"`
	Spearman                    *float64 `json:"spearman"`
	KendallTau                  *float64 `json:"kendalltau"`
}

// CorrelationAccumulator collects score pairs for one (eval config, score
// key) and produces a CorrelationResult on demand. The zero value is ready
// to use. Not safe for concurrent use.
type CorrelationAccumulator struct {
	pairs []ScorePair
}

// Add records one observation.
func (a *CorrelationAccumulator) Add(p ScorePair) {
	a.pairs = append(a.pairs, p)
}

// Len returns the number of recorded observations.
func (a *CorrelationAccumulator) Len() int {
	return len(a.pairs)
}

// Result computes the correlation summary over everything recorded so far.
// With no observations it returns the zero result.
func (a *CorrelationAccumulator) Result() CorrelationResult {
	n := len(a.pairs)
	if n == 0 {
		return CorrelationResult{}
	}

	var mae, nmae, mse, nmse float64
	model := make([]float64, n)
	human := make([]float64, n)
	for i, p := range a.pairs {
		d := p.Model - p.Human
		nd := p.NormalizedModel - p.NormalizedHuman
		mae += math.Abs(d)
		nmae += math.Abs(nd)
		mse += d * d
		nmse += nd * nd
		model[i] = p.Model
		human[i] = p.Human
	}

	fn := float64(n)
	return CorrelationResult{
		MeanAbsoluteError:           mae / fn,
		MeanNormalizedAbsoluteError: nmae / fn,
		MeanSquaredError:            mse / fn,
		MeanNormalizedSquaredError:  nmse / fn,
		Pearson:                     pearson(model, human),
		Spearman:                    spearman(model, human),
		KendallTau:                  kendallTau(model, human),
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func pearson(xs, ys []float64) *float64 {
	n := len(xs)
	if n < 2 {
		return nil
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return nil
	}
	r := sxy / math.Sqrt(sxx*syy)
	return &r
}

// spearman is the Pearson correlation of the ranks, with ties assigned
// their average rank.
func spearman(xs, ys []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	return pearson(ranks(xs), ranks(ys))
}

// kendallTau computes the tau-b coefficient, which discounts ties on either
// side.
func kendallTau(xs, ys []float64) *float64 {
	n := len(xs)
	if n < 2 {
		return nil
	}

	var concordant, discordant, tiesX, tiesY int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := xs[i] - xs[j]
			dy := ys[i] - ys[j]
			switch {
			case dx == 0 && dy == 0:
				tiesX++
				tiesY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	n0 := n * (n - 1) / 2
	denom := math.Sqrt(float64(n0-tiesX) * float64(n0-tiesY))
	if denom == 0 {
		return nil
	}
	tau := float64(concordant-discordant) / denom
	return &tau
}

// ranks assigns 1-based ranks; tied values all receive the average of the
// ranks they span.
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
