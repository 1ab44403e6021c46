// Package testutils provides utilities for testing, including synthetic
// annotation corpora. These components are intended for internal use within
// the project's test suites and are not part of the public API.
package testutils

import (
	"math/rand"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// CorpusConfig controls the shape of a generated annotation corpus.
type CorpusConfig struct {
	// Types lists the annotation labels to generate. Defaults to DefaultTypes.
	Types []string
	// Clusters is the number of gold clusters generated per type.
	Clusters int
	// SpansPerCluster is the number of overlapping gold spans in a cluster.
	SpansPerCluster int
	// MaxReach bounds how far a gold span extends on either side of its
	// cluster's pivot offset.
	MaxReach int
	// Jitter is the maximum boundary shift applied to predictions.
	Jitter int
	// Noise is the number of extra random predictions per type.
	Noise int
}

// Corpus is a generated gold set with predictions derived from it.
type Corpus struct {
	Gold        []domain.Annotation
	Predictions []domain.Annotation
}

// DefaultCorpusConfig returns a small corpus configuration suitable for
// property tests.
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		Types:           DefaultTypes,
		Clusters:        6,
		SpansPerCluster: 4,
		MaxReach:        5,
		Jitter:          2,
		Noise:           3,
	}
}

// GenerateCorpus builds a reproducible corpus from seed.
//
// Every gold span of a cluster covers the cluster's pivot offset, so the
// vote count of a cluster rises to the pivot and falls after it: the gold
// set is always single-peaked. Clusters are separated by at least one
// offset with no votes.
func GenerateCorpus(cfg CorpusConfig, seed int64) Corpus {
	if len(cfg.Types) == 0 {
		cfg.Types = DefaultTypes
	}
	if cfg.MaxReach < 1 {
		cfg.MaxReach = 1
	}
	rng := rand.New(rand.NewSource(seed))

	var corpus Corpus
	for _, typ := range cfg.Types {
		cursor := rng.Intn(3)
		for range cfg.Clusters {
			pivot := cursor + cfg.MaxReach
			clusterEnd := pivot

			spans := make([]domain.Annotation, 0, cfg.SpansPerCluster)
			for range cfg.SpansPerCluster {
				// Votes cover [start, end-2], so end-2 >= pivot keeps the
				// pivot inside every span.
				start := pivot - rng.Intn(cfg.MaxReach+1)
				end := pivot + 2 + rng.Intn(cfg.MaxReach+1)
				spans = append(spans, domain.Annotation{Type: typ, Start: start, End: end})
				clusterEnd = max(clusterEnd, end)
			}
			corpus.Gold = append(corpus.Gold, spans...)

			if len(spans) > 0 {
				corpus.Predictions = append(corpus.Predictions, jitter(rng, spans[rng.Intn(len(spans))], cfg.Jitter))
			}

			cursor = clusterEnd + 1 + rng.Intn(4)
		}

		for range cfg.Noise {
			start := rng.Intn(cursor + 1)
			corpus.Predictions = append(corpus.Predictions, domain.Annotation{
				Type:  typ,
				Start: start,
				End:   start + 1 + rng.Intn(2*cfg.MaxReach+1),
			})
		}
	}

	rng.Shuffle(len(corpus.Predictions), func(i, j int) {
		corpus.Predictions[i], corpus.Predictions[j] = corpus.Predictions[j], corpus.Predictions[i]
	})
	return corpus
}

func jitter(rng *rand.Rand, a domain.Annotation, n int) domain.Annotation {
	if n <= 0 {
		return a
	}
	a.Start = max(0, a.Start+rng.Intn(2*n+1)-n)
	a.End = max(a.Start+1, a.End+rng.Intn(2*n+1)-n)
	return a
}
