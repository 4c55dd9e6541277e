package image

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// PacedEditor spaces outbound edit calls so batch runs stay under the
// upstream request quota.
type PacedEditor struct {
	next    Editor
	limiter *rate.Limiter
}

// NewPacedEditor allows perMinute calls per minute with a burst of one.
// A non-positive perMinute disables pacing.
func NewPacedEditor(next Editor, perMinute int) *PacedEditor {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &PacedEditor{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (p *PacedEditor) Edit(ctx context.Context, req EditRequest) (*Asset, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Edit(ctx, req)
}

var _ Editor = (*PacedEditor)(nil)
