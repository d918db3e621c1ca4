package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenarb/cyclescan/internal/domain"
)

const sampleJSON = `{
  "tokens": [
    {"id": 0, "symbol": "A"},
    {"id": 1, "symbol": "B"},
    {"id": 2, "symbol": "C"}
  ],
  "edges": [
    {"id": 0, "from": 0, "to": 1, "rate": 1.10, "pool_id": 7, "kind": 0},
    {"id": 1, "from": 1, "to": 2, "rate": 1.05, "pool_id": 7, "kind": 0},
    {"id": 2, "from": 2, "to": 0, "rate": 0.98, "pool_id": 8, "kind": 1}
  ]
}`

func TestDecode(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleJSON))
	require.NoError(t, err)
	require.Len(t, ds.Tokens, 3)
	require.Len(t, ds.Edges, 3)
	assert.Equal(t, "B", ds.Tokens[1].Symbol)
	assert.Equal(t, uint64(8), ds.Edges[2].PoolID)
	assert.Equal(t, uint8(1), ds.Edges[2].Kind)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, ds.Edges, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNumTokens_DerivedFromEdges(t *testing.T) {
	ds := &Dataset{Edges: []Edge{
		{From: 83, To: 40, Rate: 1.0},
		{From: 40, To: 22, Rate: 1.0},
	}}
	assert.Equal(t, 84, ds.NumTokens(), "token count follows the highest referenced index")

	empty := &Dataset{}
	assert.Equal(t, 0, empty.NumTokens())
}

func TestGraphEdges_Validation(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	edges, err := ds.GraphEdges()
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, 1.10, edges[0].Rate)

	bad := &Dataset{Edges: []Edge{{From: 0, To: 1, Rate: 0}}}
	_, err = bad.GraphEdges()
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	neg := &Dataset{Edges: []Edge{{From: -1, To: 1, Rate: 1.0}}}
	_, err = neg.GraphEdges()
	assert.ErrorIs(t, err, domain.ErrTokenOutOfRange)

	empty := &Dataset{}
	_, err = empty.GraphEdges()
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
}

func TestBaselineRates(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.10, 1.05, 0.98}, ds.BaselineRates())
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, err := SplitS3URI("s3://datasets/pools/latest.json")
	require.NoError(t, err)
	assert.Equal(t, "datasets", bucket)
	assert.Equal(t, "pools/latest.json", key)

	_, _, err = SplitS3URI("s3://nokey")
	assert.Error(t, err)

	assert.True(t, IsS3URI("s3://a/b"))
	assert.False(t, IsS3URI("/tmp/x.json"))
}
