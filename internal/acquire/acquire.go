// Package acquire turns a discovered item into content the analyzer can
// consume, trying an ordered list of strategies until one succeeds.
package acquire

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ytdigest/internal/domain"
)

// ErrContentUnavailable is returned when every strategy failed.
var ErrContentUnavailable = errors.New("acquire: content unavailable")

// Strategy produces content for an item or fails.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, item domain.Item) (*domain.Content, error)
}

// Chain runs strategies in order; the first success wins.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain creates a chain over strategies, most preferred first.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Acquire returns the first content produced. When all strategies fail the
// error wraps ErrContentUnavailable together with every strategy error.
func (c *Chain) Acquire(ctx context.Context, item domain.Item) (*domain.Content, error) {
	var errs []error
	for _, s := range c.strategies {
		content, err := s.Acquire(ctx, item)
		if err == nil && content != nil {
			c.logger.Debug("content acquired",
				zap.String("item_id", item.ID),
				zap.String("strategy", s.Name()),
				zap.Int64("size", content.Size))
			return content, nil
		}
		if content != nil {
			content.Release()
		}
		if err == nil {
			err = errors.New("no content")
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		c.logger.Info("acquisition strategy failed",
			zap.String("item_id", item.ID),
			zap.String("strategy", s.Name()),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no strategies configured"))
	}
	return nil, fmt.Errorf("%w: item %s: %w", ErrContentUnavailable, item.ID, errors.Join(errs...))
}
