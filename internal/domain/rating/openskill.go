package rating

import (
	"math"

	"github.com/intinig/go-openskill/rating"
	"github.com/intinig/go-openskill/types"
	"go.uber.org/thriftrw/ptr"
)

// kappa bounds how far a single update can shrink a variance.
const kappa = 1e-4

// Rating is a participant's skill estimate. It is a value: copies never
// alias the model's state.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Ordinal is the conservative skill estimate used for ranking.
func (r Rating) Ordinal(z float64) float64 {
	return r.Mu - z*r.Sigma
}

func (m *Model) options(scores []int) *types.OpenSkillOptions {
	z := m.z
	return &types.OpenSkillOptions{
		Mu:    ptr.Float64(m.mu0),
		Sigma: ptr.Float64(m.sigma0),
		Z:     &z,
		Tau:   ptr.Float64(m.tau),
		Score: scores,
	}
}

func (m *Model) toTeams(ratings [][]Rating) []types.Team {
	teams := make([]types.Team, len(ratings))
	for i, row := range ratings {
		teams[i] = make(types.Team, len(row))
		for j, r := range row {
			teams[i][j] = types.Rating{Mu: r.Mu, Sigma: r.Sigma, Z: m.z}
		}
	}
	return teams
}

// rankScores turns team totals into integer scores for the Plackett-Luce
// update: each team scores the number of teams it beat, so equal totals
// stay tied.
func rankScores(totals []float64) []int {
	out := make([]int, len(totals))
	for i, a := range totals {
		for _, b := range totals {
			if b < a {
				out[i]++
			}
		}
	}
	return out
}

// orderScores ranks teams by position: the first team won.
func orderScores(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = n - 1 - i
	}
	return out
}

// normalize maps v linearly onto [lo, hi]. A single value maps to hi.
func normalize(v []float64, lo, hi float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 1 {
		out[0] = hi
		return out
	}
	minV, maxV := v[0], v[0]
	for _, x := range v[1:] {
		minV = math.Min(minV, x)
		maxV = math.Max(maxV, x)
	}
	span := maxV - minV
	if span == 0 {
		span = 0.0001
	}
	for i, x := range v {
		out[i] = (x-minV)/span*(hi-lo) + lo
	}
	return out
}

// update computes new ratings for every participant. When scores is nil
// teams are ranked by input order and nobody is weighted.
func (m *Model) update(before [][]Rating, scores [][]float64) [][]Rating {
	var ranks []int
	var weights [][]float64
	if scores == nil {
		ranks = orderScores(len(before))
	} else {
		totals := make([]float64, len(scores))
		weights = make([][]float64, len(scores))
		for i, row := range scores {
			for _, s := range row {
				totals[i] += s
			}
			weights[i] = normalize(row, 1, 2)
		}
		ranks = rankScores(totals)
	}

	rated := rating.Rate(m.toTeams(before), m.options(ranks))

	after := make([][]Rating, len(before))
	for i, row := range before {
		after[i] = make([]Rating, len(row))
		for j, r0 := range row {
			r1 := Rating{Mu: rated[i][j].Mu, Sigma: rated[i][j].Sigma}
			if weights != nil {
				r1 = m.weigh(r0, r1, weights[i][j])
			}
			after[i][j] = r1
		}
	}
	return after
}

// weigh scales the change from r0 to r1 by w: the mean shift by w, and the
// variance reduction (measured against the tau-inflated prior) by w.
func (m *Model) weigh(r0, r1 Rating, w float64) Rating {
	prior := r0.Sigma*r0.Sigma + m.tau*m.tau
	shrink := 1 - (r1.Sigma*r1.Sigma)/prior
	return Rating{
		Mu:    r0.Mu + w*(r1.Mu-r0.Mu),
		Sigma: math.Sqrt(prior * math.Max(1-shrink*w, kappa)),
	}
}

func (m *Model) predictWin(ratings [][]Rating) []float64 {
	return rating.PredictWin(m.toTeams(ratings), m.options(nil))
}

func (m *Model) predictDraw(ratings [][]Rating) float64 {
	return rating.PredictDraw(m.toTeams(ratings), m.options(nil))
}
