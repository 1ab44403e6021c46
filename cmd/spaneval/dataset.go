package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// dataset is the JSON document eval reads and corpus writes.
type dataset struct {
	Gold        []domain.Annotation `json:"gold"`
	Predictions []domain.Annotation `json:"predictions"`
}

func readDataset(path string) (*dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return &ds, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
