package history

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ageapps/chatfeed/internal/chat"
)

// Limited throttles calls to a Service. Rapid load-more clicks and room
// switches wait for a token instead of hammering the backend.
type Limited struct {
	next    Service
	limiter *rate.Limiter
}

// NewLimited wraps next with a token bucket. A non-positive perSecond
// disables limiting.
func NewLimited(next Service, perSecond float64, burst int) Service {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// RoomHistory implements Service.
func (l *Limited) RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.RoomHistory(ctx, room)
}

// MoreHistory implements Service.
func (l *Limited) MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.MoreHistory(ctx, q)
}
