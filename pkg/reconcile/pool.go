package reconcile

import (
	"context"
	"sync"
)

// forEach runs fn for every id on up to workers goroutines. Each id is handed to exactly one
// worker, so no two calls ever target the same identifier. The first error stops the remaining
// work and is returned.
func forEach(ctx context.Context, ids []string, workers int, fn func(ctx context.Context, id string) error) error {
	if workers <= 1 {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := fn(ctx, id); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
