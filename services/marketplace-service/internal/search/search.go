// Package search implements the listing search with AI refinement.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/allowork/allowork/services/marketplace-service/internal/assistant"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
)

const FallbackSummary = "Aucun service exact trouvé. Essayez de publier une demande !"

// minAnalyzedQueryLen is the rune count a query must exceed before the
// assistant is consulted.
const minAnalyzedQueryLen = 3

// Analyzer is the part of the assistant search uses.
type Analyzer interface {
	AnalyzeSearchQuery(ctx context.Context, query string) assistant.Analysis
}

type Result struct {
	Query    string              `json:"query"`
	Services []model.Service     `json:"services"`
	Summary  string              `json:"summary"`
	Fallback bool                `json:"fallback"`
	Analysis *assistant.Analysis `json:"analysis,omitempty"`
}

type Service struct {
	store    storage.Store
	analyzer Analyzer
}

func NewService(store storage.Store, analyzer Analyzer) *Service {
	return &Service{store: store, analyzer: analyzer}
}

func (s *Service) Search(ctx context.Context, query string) (Result, error) {
	all, err := s.store.ListServices(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list services: %w", err)
	}

	res := Result{Query: query}
	needle := strings.ToLower(query)
	res.Services = filter(all, func(svc model.Service) bool {
		return strings.Contains(strings.ToLower(svc.Title), needle) ||
			strings.Contains(strings.ToLower(svc.Description), needle)
	})

	// Short queries are not analyzed and carry no summary.
	if utf8.RuneCountInString(query) > minAnalyzedQueryLen && s.analyzer != nil {
		analysis := s.analyzer.AnalyzeSearchQuery(ctx, query)
		res.Analysis = &analysis
		if analysis.Intent != assistant.IntentGeneral {
			res.Services = filter(all, func(svc model.Service) bool {
				return containsFold(svc.Category, analysis.Category) && containsFold(svc.Location, analysis.Location)
			})
			res.Summary = fmt.Sprintf("Résultats pour \"%s\" à %s",
				orDefault(analysis.Category, "Services"),
				orDefault(analysis.Location, "Libreville"))
		} else {
			res.Summary = fmt.Sprintf("Résultats trouvés : %d", len(res.Services))
		}
	}

	if len(res.Services) == 0 {
		res.Services = all
		res.Fallback = true
		res.Summary = FallbackSummary
	}
	return res, nil
}

// Browse filters by exact category and location. Empty values and the
// category "Tous" match everything.
func (s *Service) Browse(ctx context.Context, category, location string) ([]model.Service, error) {
	all, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return filter(all, func(svc model.Service) bool {
		if category != "" && category != model.AllCategories && svc.Category != category {
			return false
		}
		return location == "" || svc.Location == location
	}), nil
}

func filter(in []model.Service, keep func(model.Service) bool) []model.Service {
	out := []model.Service{}
	for _, svc := range in {
		if keep(svc) {
			out = append(out, svc)
		}
	}
	return out
}

// containsFold reports whether sub occurs in s ignoring case. An empty sub
// matches.
func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
