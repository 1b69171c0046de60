package pipeline

import (
	"context"
	"sync"
)

// ProducerSet tracks the concurrent workers feeding one stage's named pipes.
type ProducerSet struct {
	mu   sync.Mutex
	errs []error
	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

func newProducerSet() *ProducerSet {
	return &ProducerSet{done: make(chan struct{})}
}

func (p *ProducerSet) launch(fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
}

// seal starts the watcher that closes done once every producer has returned.
// Call exactly once, after all launches.
func (p *ProducerSet) seal() {
	p.once.Do(func() {
		go func() {
			p.wg.Wait()
			close(p.done)
		}()
	})
}

// Wait blocks until every producer finished or the context ends, returning
// the first producer error.
func (p *ProducerSet) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		return p.errs[0]
	}
	return nil
}

// Settled reports whether all producers already returned, without blocking.
func (p *ProducerSet) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
