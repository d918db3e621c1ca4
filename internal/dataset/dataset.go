// Package dataset loads the token/edge universe the pipeline runs
// over. A dataset is a JSON document of tokens and directed conversion
// edges; it can live on the local filesystem or in an S3-compatible
// object store.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/graph"
)

// Token is one currency in the conversion universe. The symbol is
// informational; the pipeline addresses tokens by dense index.
type Token struct {
	ID     uint64 `json:"id"`
	Symbol string `json:"symbol"`
}

// Edge is one directed conversion in the dataset file. PoolID and Kind
// identify the venue the rate came from; the core carries them through
// untouched.
type Edge struct {
	ID     uint64  `json:"id"`
	From   int     `json:"from"`
	To     int     `json:"to"`
	Rate   float64 `json:"rate"`
	PoolID uint64  `json:"pool_id"`
	Kind   uint8   `json:"kind"`
}

// Dataset is the decoded document.
type Dataset struct {
	Tokens []Token `json:"tokens"`
	Edges  []Edge  `json:"edges"`
}

// Load reads and decodes a dataset from a local file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return ds, nil
}

// Decode parses a dataset document from a reader.
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// NumTokens returns the token count implied by the edges: the highest
// referenced index plus one. The token list is advisory; an edge may
// reference an index beyond it and still be valid.
func (d *Dataset) NumTokens() int {
	highest := -1
	for _, e := range d.Edges {
		if e.From > highest {
			highest = e.From
		}
		if e.To > highest {
			highest = e.To
		}
	}
	return highest + 1
}

// GraphEdges validates every edge and converts the dataset into the
// graph builder's input form. Validation mirrors the build rules:
// indices must be non-negative and rates finite and strictly positive.
func (d *Dataset) GraphEdges() ([]graph.Edge, error) {
	if len(d.Edges) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	edges := make([]graph.Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		if e.From < 0 {
			return nil, fmt.Errorf("dataset: edge %d: from %d: %w", e.ID, e.From, domain.ErrTokenOutOfRange)
		}
		if e.To < 0 {
			return nil, fmt.Errorf("dataset: edge %d: to %d: %w", e.ID, e.To, domain.ErrTokenOutOfRange)
		}
		if math.IsNaN(e.Rate) || math.IsInf(e.Rate, 0) || e.Rate <= 0 {
			return nil, fmt.Errorf("dataset: edge %d: rate %v: %w", e.ID, e.Rate, domain.ErrInvalidRate)
		}
		edges = append(edges, graph.Edge{From: e.From, To: e.To, Rate: e.Rate})
	}
	return edges, nil
}

// BaselineRates returns the initial linear rate per edge in global
// edge-index order. The producer jitters around these.
func (d *Dataset) BaselineRates() []float64 {
	rates := make([]float64, len(d.Edges))
	for i, e := range d.Edges {
		rates[i] = e.Rate
	}
	return rates
}
