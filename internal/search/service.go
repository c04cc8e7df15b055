package search

import (
	"context"
	"log/slog"
)

// Index is a search backend that can also be written to.
type Index interface {
	Searcher
	IndexContent(records ...ContentRecord) error
	DeleteContent(id string) error
}

// Fallback is the always-available backend, also used as the reindex source.
type Fallback interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]ContentRecord, error)
}

// Service tries the index first and falls back to Postgres full-text search.
type Service struct {
	index    Index
	fallback Fallback
	logger   *slog.Logger
	async    func(func())
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, fallback Fallback, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:    index,
		fallback: fallback,
		logger:   logger,
		async:    func(f func()) { go f() },
	}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search returns raw hits. Callers filter them by what the user may view.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WarnContext(ctx, "search index error, falling back to pgfts", slog.String("error", err.Error()))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "pgfts search failed", slog.String("error", err.Error()))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexContent pushes a content item to the index without waiting.
func (s *Service) IndexContent(record ContentRecord) {
	if !s.indexReady() {
		return
	}
	s.async(func() {
		if err := s.index.IndexContent(record); err != nil {
			s.logger.Warn("index content", slog.String("content", record.ID), slog.String("error", err.Error()))
		}
	})
}

// DeleteContent removes a content item from the index without waiting.
func (s *Service) DeleteContent(id string) {
	if !s.indexReady() {
		return
	}
	s.async(func() {
		if err := s.index.DeleteContent(id); err != nil {
			s.logger.Warn("delete content from index", slog.String("content", id), slog.String("error", err.Error()))
		}
	})
}

// ReindexAll loads every content item from Postgres and pushes it to the index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reindex load failed", slog.String("error", err.Error()))
		return
	}
	if err := s.index.IndexContent(records...); err != nil {
		s.logger.ErrorContext(ctx, "reindex content", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "search reindexed", slog.Int("records", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
