package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"

	"go.uber.org/zap"
)

// DefaultPosition is Lima city center, used whenever the user cannot be located.
var DefaultPosition = domain.Position{Lat: -12.0464, Lon: -77.0428}

// PositionProvider obtains the initial reference position with a single bounded attempt.
type PositionProvider struct {
	Default domain.Position
	Timeout time.Duration
	Log     *zap.Logger
}

func NewPositionProvider(def domain.Position, timeout time.Duration, log *zap.Logger) *PositionProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &PositionProvider{Default: def, Timeout: timeout, Log: log}
}

// Acquire reads src once. Denial, unavailability or timeout return the default
// position with degraded=true; degraded mode is informational only.
func (p *PositionProvider) Acquire(ctx context.Context, src ports.PositionSource) (domain.Position, bool) {
	pos, err := p.read(ctx, src)
	if err != nil {
		p.Log.Info("using default position",
			zap.String("req_id", obs.RequestID(ctx)),
			zap.Float64("lat", p.Default.Lat),
			zap.Float64("lon", p.Default.Lon),
			zap.Error(err),
		)
		return p.Default, true
	}
	return pos, false
}

type positionResult struct {
	pos domain.Position
	err error
}

func (p *PositionProvider) read(ctx context.Context, src ports.PositionSource) (domain.Position, error) {
	if src == nil {
		return domain.Position{}, domain.ErrPositionUnavailable
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	ch := make(chan positionResult, 1)
	go func() {
		pos, err := src.Locate(ctx)
		ch <- positionResult{pos: pos, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, domain.ErrPositionUnavailable) {
				return domain.Position{}, res.err
			}
			return domain.Position{}, fmt.Errorf("%w: %w", domain.ErrPositionUnavailable, res.err)
		}
		if !res.pos.Valid() {
			return domain.Position{}, fmt.Errorf("%w: invalid coordinate %v", domain.ErrPositionUnavailable, res.pos)
		}
		return res.pos, nil
	case <-ctx.Done():
		return domain.Position{}, fmt.Errorf("%w: %w", domain.ErrPositionUnavailable, ctx.Err())
	}
}
