package testutils

// Annotation labels used by generated corpora.
const (
	TypePerson   = "PER"
	TypeLocation = "LOC"
	TypeGene     = "GENE"

	// TypeUnknown never appears in generated gold.
	TypeUnknown = "MISC"
)

// DefaultTypes is the label set used when a CorpusConfig names none.
var DefaultTypes = []string{TypePerson, TypeLocation, TypeGene}
