// Package file persists the vector index as a single JSON document and
// serves it as an immutable in-memory snapshot.
package file

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure the adapters implement the ports.
var (
	_ driven.VectorWriter   = (*Writer)(nil)
	_ driven.VectorSnapshot = (*Store)(nil)
)

// Writer persists a vector index to disk.
type Writer struct{}

// NewWriter creates a vector index writer.
func NewWriter() *Writer { return &Writer{} }

// Write marshals vf to path, creating parent directories as needed.
func (w *Writer) Write(path string, vf *domain.VectorsFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector store directory: %w", err)
	}

	data, err := json.MarshalIndent(vf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vector store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write vector store %s: %w", path, err)
	}
	return nil
}

// Load reads and validates a vector index. Every violation is reported
// as a StoreValidationError naming the offending item, so a truncated or
// hand-edited file is rejected at startup rather than producing silent
// garbage scores at query time.
func Load(path string) (*domain.VectorsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector store %s: %w", path, err)
	}

	var vf domain.VectorsFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, &domain.StoreValidationError{Path: path, Index: -1, Reason: "not valid JSON: " + err.Error()}
	}
	if err := validate(path, &vf); err != nil {
		return nil, err
	}
	return &vf, nil
}

func validate(path string, vf *domain.VectorsFile) error {
	fileErr := func(reason string) error {
		return &domain.StoreValidationError{Path: path, Index: -1, Reason: reason}
	}
	if strings.TrimSpace(vf.CreatedAt) == "" {
		return fileErr("missing created_at")
	}
	if len(vf.Items) == 0 {
		return fileErr("no items")
	}

	dim := len(vf.Items[0].Embedding)
	for i, item := range vf.Items {
		itemErr := func(reason string) error {
			return &domain.StoreValidationError{Path: path, Index: i, Reason: reason}
		}
		if strings.TrimSpace(item.ID) == "" {
			return itemErr("missing id")
		}
		if strings.TrimSpace(item.URL) == "" {
			return itemErr("missing url")
		}
		if strings.TrimSpace(item.Chunk) == "" {
			return itemErr("missing chunk text")
		}
		if len(item.Embedding) == 0 {
			return itemErr("empty embedding")
		}
		if len(item.Embedding) != dim {
			return itemErr(fmt.Sprintf("embedding has %d dimensions, expected %d", len(item.Embedding), dim))
		}
		for _, v := range item.Embedding {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return itemErr("embedding contains a non-finite value")
			}
		}
	}
	return nil
}

// Store holds a validated vector index in memory. The snapshot is set
// once at startup and treated as read-only thereafter.
type Store struct {
	vf *domain.VectorsFile
}

// NewStore wraps an already-validated index. A nil index yields an
// empty store whose Get returns nil.
func NewStore(vf *domain.VectorsFile) *Store { return &Store{vf: vf} }

// Open loads and validates the index at path into a Store.
func Open(path string) (*Store, error) {
	vf, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{vf: vf}, nil
}

// Get returns the loaded index, or nil when none was loaded.
func (s *Store) Get() *domain.VectorsFile {
	if s == nil {
		return nil
	}
	return s.vf
}
