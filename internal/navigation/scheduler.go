package navigation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrSessionClosed = errors.New("navigation session closed")

type Timer interface {
	Stop() bool
}

// Scheduler is the only way session code waits or does I/O. Callbacks passed
// to AfterFunc and the functions returned by Go work always run on the
// session loop, one at a time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Go(work func(ctx context.Context) func())
}

// Loop runs every task of one session on a single goroutine.
type Loop struct {
	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	timers map[*loopTimer]struct{}
	work   sync.WaitGroup
}

func NewLoop() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		tasks:  make(chan func(), 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		timers: map[*loopTimer]struct{}{},
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

// Post queues fn on the loop. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.ctx.Done():
		return false
	case l.tasks <- fn:
		return true
	}
}

// Do runs fn on the loop and waits for it. It must not be called from the loop.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrSessionClosed
	}
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	return t.timer.Stop()
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	l.mu.Lock()
	defer l.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		l.forget(t)
		l.Post(func() {
			if !t.stopped.Swap(true) {
				fn()
			}
		})
	})
	l.timers[t] = struct{}{}
	return t
}

func (l *Loop) forget(t *loopTimer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.work.Add(1)
	go func() {
		defer l.work.Done()
		if apply := work(l.ctx); apply != nil {
			l.Post(apply)
		}
	}()
}

// Close stops every timer, cancels in-flight work and waits for the loop
// goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	for t := range l.timers {
		t.Stop()
	}
	l.timers = map[*loopTimer]struct{}{}
	l.mu.Unlock()

	l.cancel()
	<-l.done
	l.work.Wait()
}
