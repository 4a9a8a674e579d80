// Package worker runs independent units of work on a fixed number of
// goroutines.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is a unit of work. Its error is logged, never propagated.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// Pool executes submitted tasks on Size workers. Submit blocks while the
// queue is full.
type Pool struct {
	Size int

	ctx       context.Context
	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
	completed int64
	failed    int64
}

// NewPool starts size workers with a queue of queueSize pending tasks.
func NewPool(ctx context.Context, size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = size
	}

	p := &Pool{
		Size: size,
		ctx:  ctx,
		jobs: make(chan job, queueSize),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		err := p.run(j)
		if err != nil {
			atomic.AddInt64(&p.failed, 1)
			slog.Error("task failed", "worker", id, "task", j.name, "err", err)
			continue
		}
		atomic.AddInt64(&p.completed, 1)
	}
}

func (p *Pool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.task(p.ctx)
}

// Submit enqueues task. It returns the context error if ctx is cancelled
// while waiting for room in the queue.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	select {
	case p.jobs <- job{name: name, task: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait lets the queued tasks drain, then stops the workers. No task may be
// submitted afterwards.
func (p *Pool) Wait() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// Stats returns how many tasks completed and how many failed.
func (p *Pool) Stats() (completed, failed int) {
	return int(atomic.LoadInt64(&p.completed)), int(atomic.LoadInt64(&p.failed))
}
