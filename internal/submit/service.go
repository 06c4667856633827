package submit

import (
	"context"
	"fmt"
)

// Service is the idempotent submission protocol: deduplication by key
// around a retried transport call.
type Service struct {
	dedup   *Deduplicator
	retrier *Retrier
}

func NewService(dedup *Deduplicator, retrier *Retrier) *Service {
	return &Service{dedup: dedup, retrier: retrier}
}

// Do submits op under key. Duplicates share the outcome of the first call.
func (s *Service) Do(ctx context.Context, key string, op Operation) (any, error) {
	v, _, err := s.dedup.Submit(ctx, key, func(ctx context.Context) (any, error) {
		return s.retrier.Do(ctx, op)
	})
	return v, err
}

// Pending reports submissions in flight or still answering duplicates.
func (s *Service) Pending() int {
	return s.dedup.Pending()
}

// Close releases the deduplicator's background loop.
func (s *Service) Close() error {
	return s.dedup.Close()
}

// Submit is the typed form of Service.Do.
func Submit[T any](ctx context.Context, s *Service, key string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := s.Do(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("submit: unexpected result type %T for key %s", v, key)
	}
	return out, nil
}
