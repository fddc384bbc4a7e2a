package judge

import "github.com/raphaelgruber/flowsim-go/internal/models"

// MetricF1 computes precision, recall and F1 between two name sets.
// Order and repetition do not matter.
func MetricF1(required, called []string) (precision, recall, f1 float64) {
	reqSet := toSet(required)
	calledSet := toSet(called)

	var hits int
	for name := range calledSet {
		if _, ok := reqSet[name]; ok {
			hits++
		}
	}

	if len(calledSet) > 0 {
		precision = float64(hits) / float64(len(calledSet))
	}
	if len(reqSet) > 0 {
		recall = float64(hits) / float64(len(reqSet))
	} else {
		// No required APIs means any behaviour satisfies the requirement.
		recall = 1
		if len(calledSet) == 0 {
			precision = 1
		}
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// MetricAcc is the fraction of turns where the predicted API call name
// matches the ground truth, counting two plain responses as a match.
func MetricAcc(pairs []models.TurnAPIPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var hits int
	for _, pair := range pairs {
		switch {
		case pair.GT == nil && pair.Pred == nil:
			hits++
		case pair.GT != nil && pair.Pred != nil && pair.GT.Name == pair.Pred.Name:
			hits++
		}
	}
	return float64(hits) / float64(len(pairs))
}

// APIStat compares the distinct API names a conversation called against
// the persona's required set.
func APIStat(required, called []string) *models.APIStat {
	stat := &models.APIStat{Required: dedupe(required), Called: dedupe(called)}
	stat.Precision, stat.Recall, stat.F1 = MetricF1(required, called)
	return stat
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
