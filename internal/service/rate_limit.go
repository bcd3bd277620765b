package service

import (
	"context"
	"time"

	"mediation_desk/internal/repository"
	"mediation_desk/pkg/logger"
)

// RateLimitService applies a fixed-window counter per key. A burst that
// straddles a window boundary can reach up to twice the limit; this is an
// accepted approximation of a sliding window.
type RateLimitService interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
	Window() time.Duration
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	limit         int
	window        time.Duration
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, limit int, window time.Duration, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		limit:         limit,
		window:        window,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, int, error) {
	count, err := s.rateLimitRepo.Increment(ctx, key, s.window)
	if err != nil {
		return false, 0, err
	}
	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(s.limit), remaining, nil
}

func (s *rateLimitService) Limit() int {
	return s.limit
}

func (s *rateLimitService) Window() time.Duration {
	return s.window
}
