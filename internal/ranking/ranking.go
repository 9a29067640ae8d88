// Package ranking implements competition ranking, aggregate statistics and the
// capability-scoped projections used by the score and contribution views.
package ranking

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Order selects which direction wins
type Order int

const (
	// Ascending ranks the lowest value first (errors, pinball loss)
	Ascending Order = iota
	// Descending ranks the highest value first (contribution weights)
	Descending
)

// CompetitionRanks returns 1-based ranks aligned with values. Ties share a
// rank and the next distinct value skips ahead: [10, 10, 20] -> [1, 1, 3].
func CompetitionRanks(values []float64, order Order) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if order == Descending {
			return values[idx[a]] > values[idx[b]]
		}
		return values[idx[a]] < values[idx[b]]
	})

	ranks := make([]int, len(values))
	for pos, i := range idx {
		if pos > 0 && values[i] == values[idx[pos-1]] {
			ranks[i] = ranks[idx[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

// Round3 rounds to three decimals
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Summary holds aggregate statistics of one partition
type Summary struct {
	Mean         float64 `json:"avg"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Std          float64 `json:"std"`
	Participants int     `json:"total_participants"`
}

// Summarize computes mean, min, max and population standard deviation,
// rounded to three decimals
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	minV, maxV, sum := values[0], values[0], 0.0
	for _, v := range values {
		sum += v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	return Summary{
		Mean:         Round3(mean),
		Min:          Round3(minV),
		Max:          Round3(maxV),
		Std:          Round3(math.Sqrt(sq / float64(len(values)))),
		Participants: len(values),
	}
}

// RankedScore is a score row annotated with its position in its partition
type RankedScore struct {
	contracts.ScoreRow
	Rank              int `json:"rank"`
	TotalParticipants int `json:"total_participants"`
}

// ScoreAggregate summarizes one (variable, metric) partition
type ScoreAggregate struct {
	Variable contracts.Variable `json:"variable"`
	Metric   contracts.Metric   `json:"metric"`
	Summary
}

type scoreKey struct {
	variable contracts.Variable
	metric   contracts.Metric
}

func partitionScores(rows []contracts.ScoreRow) (map[scoreKey][]int, []scoreKey) {
	parts := make(map[scoreKey][]int)
	var keys []scoreKey
	for i, r := range rows {
		k := scoreKey{r.Variable, r.Metric}
		if _, ok := parts[k]; !ok {
			keys = append(keys, k)
		}
		parts[k] = append(parts[k], i)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].variable != keys[b].variable {
			return keys[a].variable < keys[b].variable
		}
		return keys[a].metric < keys[b].metric
	})
	return parts, keys
}

// RankScores ranks every row ascending within its (variable, metric) partition
func RankScores(rows []contracts.ScoreRow) []RankedScore {
	parts, keys := partitionScores(rows)
	out := make([]RankedScore, 0, len(rows))

	for _, k := range keys {
		members := parts[k]
		values := make([]float64, len(members))
		for i, m := range members {
			values[i] = rows[m].Value
		}
		ranks := CompetitionRanks(values, Ascending)

		start := len(out)
		for i, m := range members {
			out = append(out, RankedScore{ScoreRow: rows[m], Rank: ranks[i], TotalParticipants: len(members)})
		}
		part := out[start:]
		sort.SliceStable(part, func(a, b int) bool {
			return rankedBefore(part[a].Rank, part[b].Rank, part[a].UserID, part[b].UserID)
		})
	}
	return out
}

// AggregateScores summarizes every (variable, metric) partition
func AggregateScores(rows []contracts.ScoreRow) []ScoreAggregate {
	parts, keys := partitionScores(rows)
	out := make([]ScoreAggregate, 0, len(keys))
	for _, k := range keys {
		values := make([]float64, len(parts[k]))
		for i, m := range parts[k] {
			values[i] = rows[m].Value
		}
		out = append(out, ScoreAggregate{Variable: k.variable, Metric: k.metric, Summary: Summarize(values)})
	}
	return out
}

// RankedWeight is a contribution annotated with its position in its ensemble
type RankedWeight struct {
	contracts.WeightRow
	Rank              int `json:"rank"`
	TotalParticipants int `json:"total_participants"`
}

// RankWeights ranks every contribution descending within its ensemble
func RankWeights(rows []contracts.WeightRow) []RankedWeight {
	parts := make(map[uuid.UUID][]int)
	var keys []uuid.UUID
	for i, r := range rows {
		if _, ok := parts[r.EnsembleID]; !ok {
			keys = append(keys, r.EnsembleID)
		}
		parts[r.EnsembleID] = append(parts[r.EnsembleID], i)
	}

	out := make([]RankedWeight, 0, len(rows))
	for _, k := range keys {
		members := parts[k]
		values := make([]float64, len(members))
		for i, m := range members {
			values[i] = rows[m].Value
		}
		ranks := CompetitionRanks(values, Descending)

		start := len(out)
		for i, m := range members {
			out = append(out, RankedWeight{WeightRow: rows[m], Rank: ranks[i], TotalParticipants: len(members)})
		}
		part := out[start:]
		sort.SliceStable(part, func(a, b int) bool {
			return rankedBefore(part[a].Rank, part[b].Rank, part[a].UserID, part[b].UserID)
		})
	}
	return out
}

// rankedBefore orders by rank, then user id for a stable listing
func rankedBefore(ra, rb int, ua, ub uuid.UUID) bool {
	if ra != rb {
		return ra < rb
	}
	return ua.String() < ub.String()
}
