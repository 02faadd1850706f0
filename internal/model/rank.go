package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Rank turns raw model scores into at most k predictions ordered by
// descending probability. When softmax is set the scores are treated as
// logits. Indices without a class name are labelled class_<i>.
func Rank(scores []float32, classes []string, k int, softmax bool) []Prediction {
	if len(scores) == 0 {
		return nil
	}
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = float64(s)
	}
	if softmax {
		lse := floats.LogSumExp(probs)
		for i := range probs {
			probs[i] = math.Exp(probs[i] - lse)
		}
	}

	// Argsort sorts ascending in place; walk it from the end.
	inds := make([]int, len(probs))
	floats.Argsort(probs, inds)

	if k <= 0 || k > len(probs) {
		k = len(probs)
	}
	out := make([]Prediction, 0, k)
	for i := len(probs) - 1; i >= len(probs)-k; i-- {
		out = append(out, Prediction{
			Label:       label(classes, inds[i]),
			Probability: float32(probs[i]),
		})
	}
	return out
}

// SortPredictions orders predictions by descending probability, keeping the
// engine's order for ties.
func SortPredictions(p []Prediction) {
	sort.SliceStable(p, func(i, j int) bool {
		return p[i].Probability > p[j].Probability
	})
}

func label(classes []string, idx int) string {
	if idx < len(classes) && classes[idx] != "" {
		return classes[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}
