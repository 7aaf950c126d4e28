package comps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Searcher is the vector-index surface Service needs; *Store satisfies it.
type Searcher interface {
	Upsert(ctx context.Context, comp SoldComp, embedding []float32) error
	Search(ctx context.Context, embedding []float32, limit int) ([]SoldComp, error)
}

// Service suggests prices for detected items from comparable sold items
// and records new sales back into the index. Everything here is
// best-effort: a missing index or embedder degrades to "no hint".
type Service struct {
	embedder Embedder
	store    Searcher
	logger   *slog.Logger
}

func NewService(embedder Embedder, store Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		logger:   logger.With("component", "comps"),
	}
}

func compText(name, category string) string {
	return strings.TrimSpace(name + " " + category)
}

func (s *Service) PriceHint(ctx context.Context, name, category string) (string, bool) {
	if s == nil || s.embedder == nil || s.store == nil {
		return "", false
	}

	embedding, err := s.embedder.Embed(ctx, compText(name, category))
	if err != nil {
		s.logger.Debug("embed failed", "error", err)
		return "", false
	}

	comps, err := s.store.Search(ctx, embedding, 5)
	if err != nil {
		s.logger.Debug("comp search failed", "error", err)
		return "", false
	}
	median := medianPrice(comps)
	if median <= 0 {
		return "", false
	}
	return formatHint(median), true
}

func (s *Service) RecordSold(ctx context.Context, name, category string, priceCents int64) error {
	if s == nil || s.embedder == nil || s.store == nil {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, compText(name, category))
	if err != nil {
		return fmt.Errorf("embed sold item: %w", err)
	}

	return s.store.Upsert(ctx, SoldComp{
		Name:       name,
		Category:   category,
		PriceCents: priceCents,
	}, embedding)
}

func medianPrice(comps []SoldComp) int64 {
	prices := make([]int64, 0, len(comps))
	for _, c := range comps {
		if c.PriceCents > 0 {
			prices = append(prices, c.PriceCents)
		}
	}
	if len(prices) == 0 {
		return 0
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func formatHint(priceCents int64) string {
	if priceCents <= 0 {
		return ""
	}
	if priceCents%100 == 0 {
		return fmt.Sprintf("$%d", priceCents/100)
	}
	return fmt.Sprintf("$%d.%02d", priceCents/100, priceCents%100)
}
