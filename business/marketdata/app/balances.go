package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

// BalanceService snapshots account balances across all venues and caches
// the last good sheet.
type BalanceService struct {
	providers []BalanceProvider
	logger    *slog.Logger

	mu    sync.RWMutex
	sheet *domain.BalanceSheet
}

func NewBalanceService(providers []BalanceProvider, logger *slog.Logger) *BalanceService {
	return &BalanceService{
		providers: providers,
		logger:    logger.With(slog.String("component", "marketdata.balances")),
	}
}

// Refresh fetches balances from every venue concurrently and replaces the
// cached sheet. A venue failure fails the whole refresh: sizing against a
// partially refreshed sheet could overcommit funds.
func (s *BalanceService) Refresh(ctx context.Context) (*domain.BalanceSheet, error) {
	sheet := domain.NewBalanceSheet()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, provider := range s.providers {
		g.Go(func() error {
			balances, err := provider.GetBalances(gctx)
			if err != nil {
				return apperror.Wrap(err, apperror.CodeExchangeAPIError,
					"balance fetch from "+provider.Name())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, b := range balances {
				sheet.Set(b)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sheet.TakenAt = time.Now()

	s.mu.Lock()
	s.sheet = sheet
	s.mu.Unlock()

	return sheet, nil
}

// Current returns the last successfully refreshed sheet, or nil before the
// first refresh.
func (s *BalanceService) Current() *domain.BalanceSheet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sheet
}
