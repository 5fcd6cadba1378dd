package domain

import "math"

// VectorItem is one embedded chunk of a knowledge-base article.
// ID is a deterministic encoding of (url, chunk index) so that re-running
// ingestion over the same content produces the same identifiers.
type VectorItem struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Chunk     string    `json:"chunk"`
	Embedding []float64 `json:"embedding"`
}

// VectorsFile is the persisted form of the vector index. It is written
// once by the ingestion job and loaded wholesale at serve start; the set
// is replaced atomically by re-running ingestion.
type VectorsFile struct {
	CreatedAt string       `json:"created_at"`
	Items     []VectorItem `json:"items"`
}

// Dimensions returns the embedding dimensionality of the file, or 0 when
// the file holds no items.
func (f *VectorsFile) Dimensions() int {
	if f == nil || len(f.Items) == 0 {
		return 0
	}
	return len(f.Items[0].Embedding)
}

// CosineSimilarity returns the normalized dot product of a and b.
// It is defined as 0 when the vectors differ in length or either has a
// zero norm; it never divides by zero and never panics.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
