package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"budgetbook/internal/cache"
	"budgetbook/internal/core"
	"budgetbook/internal/store"
	"budgetbook/internal/view"
)

// MonthSource is what the month service reads from.
type MonthSource interface {
	store.MonthReader
	store.BudgetReader
}

// MonthService loads and normalizes one month at a time, caching the
// result per user.
type MonthService struct {
	source MonthSource
	cache  *cache.LRUCache[view.MonthData]
	group  singleflight.Group
	logger *slog.Logger
}

func NewMonthService(source MonthSource, size int, ttl time.Duration, logger *slog.Logger) *MonthService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MonthService{
		source: source,
		cache:  cache.NewLRUCache[view.MonthData](size, ttl),
		logger: logger,
	}
}

// Cache exposes the month cache so it can be registered for cleanup.
func (s *MonthService) Cache() *cache.LRUCache[view.MonthData] { return s.cache }

func monthKey(user string, ym core.YearMonth) string {
	return user + "|" + ym.String()
}

// Load returns the normalized month for user. The raw month and the budget
// are fetched concurrently. A budget failure yields an empty budget; a month
// failure is returned.
func (s *MonthService) Load(ctx context.Context, user string, ym core.YearMonth) (view.MonthData, error) {
	if err := ym.Validate(); err != nil {
		return view.MonthData{}, err
	}
	key := monthKey(user, ym)
	if data, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "Month cache hit", "key", key)
		return data, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, ym)
	})
	if err != nil {
		return view.MonthData{}, err
	}
	data := v.(loaded)
	if shared {
		s.logger.DebugContext(ctx, "Month load shared", "key", key)
	}
	if !data.budgetFailed {
		s.cache.Set(key, data.MonthData)
	}
	return data.MonthData, nil
}

type loaded struct {
	view.MonthData
	budgetFailed bool
}

func (s *MonthService) fetch(ctx context.Context, ym core.YearMonth) (loaded, error) {
	var (
		raw       core.MonthlyRawStore
		budget    core.BudgetMap
		budgetErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = s.source.FetchMonth(gctx, ym)
		if err != nil {
			return fmt.Errorf("fetch month %s: %w", ym, err)
		}
		return nil
	})
	g.Go(func() error {
		budget, budgetErr = s.source.FetchBudget(gctx, ym)
		if errors.Is(budgetErr, store.ErrUnauthorized) {
			return budgetErr
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return loaded{}, err
	}

	failed := budgetErr != nil
	if failed {
		s.logger.WarnContext(ctx, "Budget unavailable, hints hidden", "month", ym.String(), "error", budgetErr)
		budget = core.BudgetMap{}
	}
	if budget == nil {
		budget = core.BudgetMap{}
	}

	records, report := core.NormalizeMonth(raw)
	if len(report.Issues) > 0 || report.Dropped > 0 {
		s.logger.DebugContext(ctx, "Normalization issues",
			"month", ym.String(), "issues", len(report.Issues), "dropped", report.Dropped)
	}
	return loaded{
		MonthData: view.MonthData{
			Month:   ym,
			Records: records,
			Budget:  budget,
			Report:  report,
		},
		budgetFailed: failed,
	}, nil
}

// Invalidate drops the cached month of one user.
func (s *MonthService) Invalidate(user string, ym core.YearMonth) {
	s.cache.Delete(monthKey(user, ym))
}

// InvalidateMonth drops the month for every user.
func (s *MonthService) InvalidateMonth(ym core.YearMonth) int {
	suffix := "|" + ym.String()
	return s.cache.DeleteFunc(func(key string) bool { return strings.HasSuffix(key, suffix) })
}

// InvalidateAll drops every cached month.
func (s *MonthService) InvalidateAll() {
	s.cache.Clear()
}
