package convergence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/inquestlabs/inquest/domain/finding"
)

// minDensity is the convergence bar: classes a single lens produced are
// noted but never ranked.
const minDensity = 2

// ErrUnknownAggregator is returned for an unrecognized aggregator name.
var ErrUnknownAggregator = errors.New("unknown aggregator")

// Aggregator folds the per-finding judgment axes of a region class into one
// value per axis. The source material leaves this choice to the analyst, so
// it is injected rather than hardcoded.
type Aggregator interface {
	Name() string
	Aggregate(values []float64) (float64, error)
}

type statAggregator struct {
	name string
	fn   func(stats.Float64Data) (float64, error)
}

func (a statAggregator) Name() string { return a.name }

func (a statAggregator) Aggregate(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New("aggregate over empty values")
	}
	return a.fn(stats.Float64Data(values))
}

// MaxAggregator takes the strongest judgment per axis. Default.
func MaxAggregator() Aggregator { return statAggregator{name: "max", fn: stats.Max} }

// MeanAggregator averages the judgments per axis.
func MeanAggregator() Aggregator { return statAggregator{name: "mean", fn: stats.Mean} }

// MedianAggregator takes the middle judgment per axis, robust to one
// overexcited lens.
func MedianAggregator() Aggregator { return statAggregator{name: "median", fn: stats.Median} }

// AggregatorByName resolves a configured aggregator name.
func AggregatorByName(name string) (Aggregator, error) {
	switch name {
	case "", "max":
		return MaxAggregator(), nil
	case "mean":
		return MeanAggregator(), nil
	case "median":
		return MedianAggregator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, name)
	}
}

// Point is a scored, ranked region class.
type Point struct {
	RegionClassID string  `json:"region_class_id"`
	Density       int     `json:"density"`
	ValueImpact   float64 `json:"value_impact"`
	Complexity    float64 `json:"complexity"`
	Novelty       float64 `json:"novelty"`
	Score         float64 `json:"score"`
}

// Ranking is the total order over convergent classes plus the noted
// non-convergent remainder. Nothing is silently discarded.
type Ranking struct {
	Points        []Point       `json:"points"`
	NonConvergent []RegionClass `json:"non_convergent,omitempty"`
}

// Active returns the rank-1 point, the committed investigation target.
func (r Ranking) Active() (Point, bool) {
	if len(r.Points) == 0 {
		return Point{}, false
	}
	return r.Points[0], true
}

// Backups returns ranks 2-3, retained as fallback targets.
func (r Ranking) Backups() []Point {
	if len(r.Points) <= 1 {
		return nil
	}
	end := len(r.Points)
	if end > 3 {
		end = 3
	}
	return r.Points[1:end]
}

// Scorer ranks region classes by density × valueImpact × complexity ×
// novelty, the latter three aggregated across members.
type Scorer struct {
	agg Aggregator
}

// NewScorer creates a scorer with the given aggregation strategy; nil means
// max.
func NewScorer(agg Aggregator) *Scorer {
	if agg == nil {
		agg = MaxAggregator()
	}
	return &Scorer{agg: agg}
}

// Score computes the ranking over the classes. Order is by score descending,
// ties broken by region class id ascending so recomputation is stable.
func (s *Scorer) Score(classes []RegionClass, lookup func(id string) (finding.Finding, bool)) (Ranking, error) {
	var ranking Ranking

	for _, class := range classes {
		if class.Density() < minDensity {
			ranking.NonConvergent = append(ranking.NonConvergent, class)
			continue
		}

		var impact, complexity, novelty []float64
		for _, id := range class.Members {
			f, ok := lookup(id)
			if !ok {
				return Ranking{}, fmt.Errorf("region class %s references unknown finding %s", class.ID, id)
			}
			impact = append(impact, f.Scores.ValueImpact)
			complexity = append(complexity, f.Scores.Complexity)
			novelty = append(novelty, f.Scores.Novelty)
		}

		vi, err := s.agg.Aggregate(impact)
		if err != nil {
			return Ranking{}, fmt.Errorf("aggregate value impact for %s: %w", class.ID, err)
		}
		cx, err := s.agg.Aggregate(complexity)
		if err != nil {
			return Ranking{}, fmt.Errorf("aggregate complexity for %s: %w", class.ID, err)
		}
		nv, err := s.agg.Aggregate(novelty)
		if err != nil {
			return Ranking{}, fmt.Errorf("aggregate novelty for %s: %w", class.ID, err)
		}

		ranking.Points = append(ranking.Points, Point{
			RegionClassID: class.ID,
			Density:       class.Density(),
			ValueImpact:   vi,
			Complexity:    cx,
			Novelty:       nv,
			Score:         float64(class.Density()) * vi * cx * nv,
		})
	}

	sort.Slice(ranking.Points, func(i, j int) bool {
		if ranking.Points[i].Score != ranking.Points[j].Score {
			return ranking.Points[i].Score > ranking.Points[j].Score
		}
		return ranking.Points[i].RegionClassID < ranking.Points[j].RegionClassID
	})

	return ranking, nil
}
