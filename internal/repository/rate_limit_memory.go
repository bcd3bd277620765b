package repository

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

type memoryRateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryRateLimitRepository keeps counters in process. now drives window
// expiry so tests can move time.
func NewMemoryRateLimitRepository(now func() time.Time) RateLimitRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryRateLimitRepository{
		windows: make(map[string]*window),
		now:     now,
	}
}

func (r *memoryRateLimitRepository) Increment(_ context.Context, key string, length time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(length)}
		r.windows[key] = w
	}
	w.count++

	// drop lapsed windows so idle senders do not accumulate
	if len(r.windows) > 1024 {
		for k, other := range r.windows {
			if !now.Before(other.expiresAt) {
				delete(r.windows, k)
			}
		}
	}
	return w.count, nil
}
