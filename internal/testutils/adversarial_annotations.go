package testutils

import (
	"math/rand"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// AdversarialCase is a small gold and prediction set built around an edge
// of the centroid model.
type AdversarialCase struct {
	Name        string
	Gold        []domain.Annotation
	Predictions []domain.Annotation
	// WantMultiPeak is set when the gold set cannot be turned into
	// centroids.
	WantMultiPeak bool
}

func ann(typ string, start, end int) domain.Annotation {
	return domain.Annotation{Type: typ, Start: start, End: end}
}

// AdversarialCases covers inputs that tend to break span evaluators:
// nesting, touching regions, single offsets, duplicates, huge offsets and
// predictions the gold set knows nothing about.
var AdversarialCases = []AdversarialCase{
	{
		Name:        "nested spans sharing a start",
		Gold:        []domain.Annotation{ann("x", 0, 10), ann("x", 0, 5), ann("x", 0, 3)},
		Predictions: []domain.Annotation{ann("x", 0, 3), ann("x", 0, 10), ann("x", 1, 5)},
	},
	{
		Name:        "nested spans sharing an end",
		Gold:        []domain.Annotation{ann("x", 0, 10), ann("x", 5, 10), ann("x", 8, 10)},
		Predictions: []domain.Annotation{ann("x", 8, 10), ann("x", 5, 10), ann("x", 0, 9)},
	},
	{
		Name:        "single offset spans",
		Gold:        []domain.Annotation{ann("x", 3, 4), ann("x", 3, 4)},
		Predictions: []domain.Annotation{ann("x", 3, 4)},
	},
	{
		Name:        "touching regions",
		Gold:        []domain.Annotation{ann("x", 0, 4), ann("x", 4, 8)},
		Predictions: []domain.Annotation{ann("x", 0, 8), ann("x", 0, 4), ann("x", 4, 8)},
	},
	{
		Name:          "second peak inside one region",
		Gold:          []domain.Annotation{ann("x", 4, 16), ann("x", 8, 11), ann("x", 12, 16)},
		Predictions:   []domain.Annotation{ann("x", 4, 16)},
		WantMultiPeak: true,
	},
	{
		Name:        "large offsets",
		Gold:        []domain.Annotation{ann("x", 1_000_000_000, 1_000_000_005), ann("x", 1_000_000_001, 1_000_000_004)},
		Predictions: []domain.Annotation{ann("x", 1_000_000_000, 1_000_000_005), ann("x", 999_999_999, 1_000_000_005)},
	},
	{
		Name: "unknown types and invalid spans",
		Gold: []domain.Annotation{ann("x", 0, 5)},
		Predictions: []domain.Annotation{
			ann("y", 0, 5), ann("x", 5, 5), ann("x", -1, 3), ann("", 0, 5), ann("x", 0, 5),
		},
	},
	{
		Name:        "duplicate predictions",
		Gold:        []domain.Annotation{ann("x", 0, 5), ann("x", 1, 5)},
		Predictions: []domain.Annotation{ann("x", 0, 5), ann("x", 0, 5), ann("x", 0, 5)},
	},
	{
		Name:        "no gold",
		Predictions: []domain.Annotation{ann("x", 0, 3)},
	},
	{
		Name: "no predictions",
		Gold: []domain.Annotation{ann("x", 0, 3), ann("y", 5, 9)},
	},
}

// MixAdversarialPredictions returns a copy of c with extra predictions that
// can never match: invalid spans and labels absent from the gold set. ratio
// is the number of added predictions relative to the existing ones and is
// ignored outside (0, 1].
func MixAdversarialPredictions(c Corpus, ratio float64, seed int64) Corpus {
	mixed := Corpus{
		Gold:        append([]domain.Annotation(nil), c.Gold...),
		Predictions: append([]domain.Annotation(nil), c.Predictions...),
	}
	if ratio <= 0 || ratio > 1 {
		return mixed
	}

	rng := rand.New(rand.NewSource(seed))
	n := int(float64(len(c.Predictions)) * ratio)
	for i := range n {
		start := rng.Intn(100)
		var a domain.Annotation
		switch i % 3 {
		case 0:
			a = ann(TypeUnknown, start, start+1+rng.Intn(5))
		case 1:
			a = ann(TypePerson, start, start)
		default:
			a = ann(TypeLocation, -1-start, start)
		}
		mixed.Predictions = append(mixed.Predictions, a)
	}

	rng.Shuffle(len(mixed.Predictions), func(i, j int) {
		mixed.Predictions[i], mixed.Predictions[j] = mixed.Predictions[j], mixed.Predictions[i]
	})
	return mixed
}
