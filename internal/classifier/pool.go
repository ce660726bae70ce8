package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many inferences run at once and how long each may take.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewPool(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
	}
}

// Predict waits for a free slot and runs model under the pool timeout. Waiting for
// a slot counts against the timeout. Any model error is wrapped in ErrClassifierFailure.
func (p *Pool) Predict(ctx context.Context, model Model, input Tensor) ([]float64, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, classifierErr(ctx, err)
	}
	defer p.sem.Release(1)

	probs, err := model.Predict(ctx, input)
	if err != nil {
		return nil, classifierErr(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, classifierErr(ctx, err)
	}
	return probs, nil
}

func classifierErr(ctx context.Context, err error) error {
	if errors.Is(err, ErrClassifierFailure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrClassifierTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrClassifierFailure, err)
}
