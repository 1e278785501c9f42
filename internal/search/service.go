package search

import (
	"context"
	"log"
	"sync"

	"boardsync/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// scanning the last published board.
type Service struct {
	meili     *Meili
	board     *boardScan
	searchers []Searcher
	logger    *log.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{meili: meili, board: &boardScan{}, logger: logger}
	if meili != nil {
		s.searchers = append(s.searchers, meili)
	}
	s.searchers = append(s.searchers, s.board)
	return s
}

// Publish records the board for the fallback path and pushes it to
// Meilisearch when it is reachable. An unhealthy index is skipped, not an
// error; the next board after recovery brings it up to date.
func (s *Service) Publish(ctx context.Context, board store.Board) error {
	s.board.set(board)

	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.meili.Sync(RecordsFromBoard(board))
}

// Search asks each healthy searcher in turn and returns the first answer.
func (s *Service) Search(q Query) Response {
	for _, searcher := range s.searchers {
		if !searcher.Healthy() {
			continue
		}
		results, total, err := searcher.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Printf("search: %T failed, trying next: %v", searcher, err)
	}
	return Response{Results: []Result{}, Query: q.Text}
}

// Close stops the Meilisearch health monitor, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

// boardScan searches the last published board in process.
type boardScan struct {
	mu    sync.RWMutex
	board store.Board
}

func (b *boardScan) set(board store.Board) {
	board = board.Clone()
	b.mu.Lock()
	b.board = board
	b.mu.Unlock()
}

func (b *boardScan) Healthy() bool {
	return true
}

func (b *boardScan) Search(q Query) ([]Result, int, error) {
	b.mu.RLock()
	board := b.board
	b.mu.RUnlock()
	results, total := matchBoard(board, q)
	return results, total, nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
