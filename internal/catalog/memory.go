package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// MemoryIndex serves a decoded dictionaries file from memory.
//
// The dictionaries are replaced wholesale on Reload, so readers always see a
// consistent snapshot.
type MemoryIndex struct {
	path   string
	dict   atomic.Pointer[Dictionaries]
	logger *slog.Logger
}

// NewMemoryIndex serves d.
func NewMemoryIndex(d *Dictionaries, logger *slog.Logger) *MemoryIndex {
	idx := &MemoryIndex{logger: logger}
	idx.dict.Store(d)

	return idx
}

// LoadFile reads the dictionaries file at path.
func LoadFile(path string, logger *slog.Logger) (*MemoryIndex, error) {
	d, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	idx := &MemoryIndex{path: path, logger: logger}
	idx.dict.Store(d)

	logger.Info("Catalog index loaded",
		slog.String("path", path),
		slog.Int("programs", len(d.Programs)),
		slog.Int("objects", len(d.CatalogIDs)),
	)

	return idx, nil
}

// Reload re-reads the file the index was loaded from. On error the current
// snapshot stays in place.
func (m *MemoryIndex) Reload() error {
	if m.path == "" {
		return nil
	}

	d, err := ReadFile(m.path)
	if err != nil {
		return err
	}

	m.dict.Store(d)
	m.logger.Info("Catalog index reloaded", slog.String("path", m.path))

	return nil
}

// Epochs implements Index.
func (m *MemoryIndex) Epochs(_ context.Context, catalogID string) ([]Epoch, error) {
	epochs, ok := m.dict.Load().CatalogIDs[catalogID]
	if !ok || len(epochs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, catalogID)
	}

	return append([]Epoch(nil), epochs...), nil
}

// Linked implements Index.
func (m *MemoryIndex) Linked(_ context.Context, catalogID string) ([]string, error) {
	return append([]string(nil), m.dict.Load().Linked[catalogID]...), nil
}

// Programs implements Index.
func (m *MemoryIndex) Programs(_ context.Context) ([]string, error) {
	return m.dict.Load().ProgramNames(), nil
}

// Fields implements Index.
func (m *MemoryIndex) Fields(_ context.Context, program string) ([]string, error) {
	fields, ok := m.dict.Load().Programs[program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, program)
	}

	return append([]string(nil), fields...), nil
}

// Objects implements Index.
func (m *MemoryIndex) Objects(_ context.Context, program, field string) ([]string, error) {
	d := m.dict.Load()

	if _, ok := d.Programs[program]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, program)
	}

	objects, ok := d.FieldIDs[fieldKey(program, field)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownField, program, field)
	}

	return append([]string(nil), objects...), nil
}

// HealthCheck implements Index.
func (m *MemoryIndex) HealthCheck(_ context.Context) error {
	if m.dict.Load() == nil {
		return ErrMalformedIndex
	}

	return nil
}
