package workpool

import (
	"context"
	"sync"
)

// Pool bounds the number of concurrently running tasks. Excess tasks
// wait for a free slot instead of spawning unboundedly.
type Pool struct {
	sem chan struct{}
}

// New creates a pool with the given concurrency limit.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go runs fn once a slot is free. It returns the context error when the
// context is done before a slot opens; fn itself runs synchronously.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	fn()
	return nil
}

// Each runs fn(0..n-1) across pool-bounded goroutines and waits for all
// of them. Tasks not yet started when the context ends are skipped.
func (p *Pool) Each(ctx context.Context, n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-p.sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
