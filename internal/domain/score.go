package domain

import "slices"

// TypeScore holds precision, recall and F1 for one annotation type, or for
// all types combined when used as the micro score of a ScoreReport.
type TypeScore struct {
	// Type is empty for the micro-averaged score.
	Type string `json:"type,omitempty"`

	TruePositives  int `json:"tp"`
	FalsePositives int `json:"fp"`
	FalseNegatives int `json:"fn"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ScoreReport summarises an EvalSets as precision/recall/F1 numbers.
type ScoreReport struct {
	// Micro pools the counts of every type before computing the ratios.
	Micro TypeScore `json:"micro"`

	// Macro averages the per-type precision, recall and F1 values.
	Macro TypeScore `json:"macro"`

	// PerType is sorted by type name.
	PerType []TypeScore `json:"per_type"`
}

// NewScoreReport computes a ScoreReport from the partitions of one
// evaluation run. Ratios with an empty denominator are reported as 0.
func NewScoreReport(sets EvalSets) ScoreReport {
	byType := make(map[string]*TypeScore)
	get := func(t string) *TypeScore {
		ts, ok := byType[t]
		if !ok {
			ts = &TypeScore{Type: t}
			byType[t] = ts
		}
		return ts
	}

	for _, a := range sets.TruePositives {
		get(a.Type).TruePositives++
	}
	for _, a := range sets.FalsePositives {
		get(a.Type).FalsePositives++
	}
	for _, c := range sets.FalseNegatives {
		get(c.Type).FalseNegatives++
	}

	var report ScoreReport
	report.PerType = make([]TypeScore, 0, len(byType))
	for _, ts := range byType {
		ts.fill()
		report.PerType = append(report.PerType, *ts)

		report.Micro.TruePositives += ts.TruePositives
		report.Micro.FalsePositives += ts.FalsePositives
		report.Micro.FalseNegatives += ts.FalseNegatives
		report.Macro.Precision += ts.Precision
		report.Macro.Recall += ts.Recall
		report.Macro.F1 += ts.F1
	}
	slices.SortFunc(report.PerType, func(a, b TypeScore) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		}
		return 0
	})

	report.Micro.fill()
	if n := float64(len(report.PerType)); n > 0 {
		report.Macro.TruePositives = report.Micro.TruePositives
		report.Macro.FalsePositives = report.Micro.FalsePositives
		report.Macro.FalseNegatives = report.Micro.FalseNegatives
		report.Macro.Precision /= n
		report.Macro.Recall /= n
		report.Macro.F1 /= n
	}
	return report
}

func (ts *TypeScore) fill() {
	ts.Precision = ratio(ts.TruePositives, ts.TruePositives+ts.FalsePositives)
	ts.Recall = ratio(ts.TruePositives, ts.TruePositives+ts.FalseNegatives)
	if ts.Precision+ts.Recall > 0 {
		ts.F1 = 2 * ts.Precision * ts.Recall / (ts.Precision + ts.Recall)
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
