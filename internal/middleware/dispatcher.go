package middleware

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Dispatcher runs updates of one chat strictly in arrival order while
// different chats proceed in parallel. A chat's goroutine exits as soon as
// its queue is empty.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[int64]*chatQueue
	wg     sync.WaitGroup
}

type chatQueue struct {
	pending []func()
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[int64]*chatQueue)}
}

func (d *Dispatcher) Middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID, _ := ChatAndUser(update)
		if chatID == 0 {
			next(ctx, b, update)
			return
		}
		d.Submit(chatID, func() { next(ctx, b, update) })
	}
}

// Submit queues fn behind everything already pending for chatID.
func (d *Dispatcher) Submit(chatID int64, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[chatID]; ok {
		q.pending = append(q.pending, fn)
		return
	}
	q := &chatQueue{pending: []func(){fn}}
	d.queues[chatID] = q
	d.wg.Add(1)
	go d.drain(chatID, q)
}

func (d *Dispatcher) drain(chatID int64, q *chatQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		d.mu.Unlock()

		fn()
	}
}

// Active reports how many chats currently have a running goroutine.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
