package duckdb

import (
	"context"
	"fmt"
)

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// EventCount returns the number of rows in EventsTable, including rows
// written by earlier sessions into the same dump database.
func (s *Store) EventCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrSinkClosed
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	// Table name is a constant, not user input.
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", EventsTable)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
