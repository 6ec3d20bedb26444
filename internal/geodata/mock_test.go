package geodata

import (
	"context"
	"sync"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
)

type call struct {
	query string
	args  []any
}

// mockExecutor returns canned results in order and records every call.
type mockExecutor struct {
	mu      sync.Mutex
	results [][]domain.Row
	errs    []error
	calls   []call
}

func (m *mockExecutor) Query(_ context.Context, query string, args ...any) ([]domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.calls)
	m.calls = append(m.calls, call{query: query, args: args})
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return nil, nil
}

// mockSummarizer returns canned summaries in order and records each window.
type mockSummarizer struct {
	rows    [][]domain.Row
	errAt   int // 1-based call that fails; 0 never
	err     error
	queries []domain.CountQuery
}

func (m *mockSummarizer) Summary(_ context.Context, q domain.CountQuery) ([]domain.Row, error) {
	m.queries = append(m.queries, q)
	n := len(m.queries)
	if n == m.errAt {
		return nil, m.err
	}
	if n <= len(m.rows) {
		return m.rows[n-1], nil
	}
	return []domain.Row{{}}, nil
}
