package hf

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The inference service replies in heterogeneous shapes depending on
// model and pipeline: a flat vector, a batch of row vectors, or either
// of those under a wrapper key. Instead of shape-sniffing ad hoc, a
// fixed priority order of explicit strategies is tried.

var errNoVector = errors.New("response contains no embedding vector")

// parseVector decodes an embedding from any of the known reply shapes.
func parseVector(payload []byte) ([]float64, error) {
	strategies := []func([]byte) ([]float64, bool){
		parseFlat,
		parseBatch,
		parseWrapped,
	}
	for _, parse := range strategies {
		if vec, ok := parse(payload); ok {
			return vec, nil
		}
	}
	return nil, errNoVector
}

// parseFlat handles `[0.1, 0.2, ...]`.
func parseFlat(payload []byte) ([]float64, bool) {
	var vec []float64
	if err := json.Unmarshal(payload, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// parseBatch handles `[[...], [...]]`, mean-pooling the rows into a
// single vector of the same dimensionality.
func parseBatch(payload []byte) ([]float64, bool) {
	var rows [][]float64
	if err := json.Unmarshal(payload, &rows); err != nil || len(rows) == 0 {
		return nil, false
	}
	vec, err := meanPool(rows)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// parseWrapped handles `{"embeddings": ...}` and `{"embedding": ...}`
// holding either of the other shapes.
func parseWrapped(payload []byte) ([]float64, bool) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, false
	}
	for _, key := range []string{"embeddings", "embedding"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if vec, ok := parseFlat(raw); ok {
			return vec, true
		}
		if vec, ok := parseBatch(raw); ok {
			return vec, true
		}
	}
	return nil, false
}

// meanPool averages row vectors element-wise. Rows must be non-empty
// and uniform in length.
func meanPool(rows [][]float64) ([]float64, error) {
	dim := len(rows[0])
	if dim == 0 {
		return nil, errNoVector
	}
	out := make([]float64, dim)
	for _, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("ragged batch: row has %d dimensions, expected %d", len(row), dim)
		}
		for i, v := range row {
			out[i] += v
		}
	}
	n := float64(len(rows))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}
