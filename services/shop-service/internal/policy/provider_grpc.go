//go:build protogen

package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/beanscout/beanscout/libs/grpcx"
	moderationv1 "github.com/beanscout/beanscout/protos/gen/moderation/v1"
)

type grpcProvider struct {
	client moderationv1.ModerationServiceClient
}

func NewModerationPolicyProvider(logger *slog.Logger, fallbackLimit int, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(fallbackLimit), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc policy provider unavailable, using fallback", "err", err)
		return NewStaticProvider(fallbackLimit), nil
	}

	logger.Info("grpc policy provider enabled", "addr", addr)
	return &grpcProvider{client: moderationv1.NewModerationServiceClient(conn)}, nil
}

func (p *grpcProvider) MaxReviewsPerDay(ctx context.Context, userID string) (int, error) {
	resp, err := p.client.GetReviewPolicy(ctx, &moderationv1.ReviewPolicyRequest{UserId: userID})
	if err != nil {
		return 0, err
	}
	return int(resp.GetMaxReviewsPerDay()), nil
}
