package driven

import "github.com/parcelly/kbrag/internal/core/domain"

// VectorWriter persists the vector index produced by ingestion.
type VectorWriter interface {
	Write(path string, vf *domain.VectorsFile) error
}

// VectorSnapshot serves the read-only vector index loaded at startup.
// Get returns nil when no index has been loaded.
type VectorSnapshot interface {
	Get() *domain.VectorsFile
}
