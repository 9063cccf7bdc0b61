// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package recordset

// Store holds the rows of a recordset. Implementations need not be safe for
// concurrent use; the Recordset serializes access.
type Store interface {
	Len() int
	// Row returns row i; callers must not modify the slice.
	Row(i int) []any
	Set(i, col int, v any)
	Append(row []any) int
	Delete(i int)
}

// MemoryStore keeps all rows in memory.
type MemoryStore struct {
	rows [][]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Len() int              { return len(s.rows) }
func (s *MemoryStore) Row(i int) []any       { return s.rows[i] }
func (s *MemoryStore) Set(i, col int, v any) { s.rows[i][col] = v }

func (s *MemoryStore) Append(row []any) int {
	s.rows = append(s.rows, row)
	return len(s.rows) - 1
}

func (s *MemoryStore) Delete(i int) {
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
}
