// Package catalog serves the global insurance catalog with an in-process cache and the
// built-in list as fallback.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
)

type Source interface {
	Insurers(ctx context.Context) ([]insurance.Insurer, error)
	Plans(ctx context.Context, insurerID string) ([]insurance.Plan, error)
}

type entry[T any] struct {
	val     T
	expires time.Time
}

type Insurers struct {
	src    Source
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	insurers *entry[[]insurance.Insurer]
	plans    map[string]entry[[]insurance.Plan]
}

func NewInsurers(src Source, ttl time.Duration, logger *slog.Logger) *Insurers {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Insurers{src: src, ttl: ttl, logger: logger, now: time.Now, plans: map[string]entry[[]insurance.Plan]{}}
}

// List returns the insurers ordered by name. An empty or failing table yields the built-in list.
func (s *Insurers) List(ctx context.Context) []insurance.Insurer {
	s.mu.Lock()
	if s.insurers != nil && s.now().Before(s.insurers.expires) {
		v := s.insurers.val
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	rows, err := s.src.Insurers(ctx)
	if err != nil {
		s.logger.Warn("insurer table unavailable, serving built-in catalog", "err", err)
		return insurance.Insurers()
	}
	if len(rows) == 0 {
		rows = insurance.Insurers()
	}
	s.mu.Lock()
	s.insurers = &entry[[]insurance.Insurer]{val: rows, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return rows
}

// Plans returns the plans of one insurer ordered by name.
func (s *Insurers) Plans(ctx context.Context, insurerID string) []insurance.Plan {
	s.mu.Lock()
	if e, ok := s.plans[insurerID]; ok && s.now().Before(e.expires) {
		s.mu.Unlock()
		return e.val
	}
	s.mu.Unlock()

	rows, err := s.src.Plans(ctx, insurerID)
	if err != nil {
		s.logger.Warn("plan table unavailable, serving built-in catalog", "err", err, "insurer_id", insurerID)
		return nonNil(insurance.PlansOf(insurerID))
	}
	if len(rows) == 0 {
		rows = insurance.PlansOf(insurerID)
	}
	rows = nonNil(rows)
	s.mu.Lock()
	s.plans[insurerID] = entry[[]insurance.Plan]{val: rows, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return rows
}

func nonNil(p []insurance.Plan) []insurance.Plan {
	if p == nil {
		return []insurance.Plan{}
	}
	return p
}
