package policy

import (
	"context"
)

// Provider answers how many reviews a user may post per rolling day.
// Zero or negative means unlimited.
type Provider interface {
	MaxReviewsPerDay(ctx context.Context, userID string) (int, error)
}

type staticProvider struct {
	limit int
}

func NewStaticProvider(limit int) Provider {
	return &staticProvider{limit: limit}
}

func (p *staticProvider) MaxReviewsPerDay(_ context.Context, _ string) (int, error) {
	return p.limit, nil
}
