package chat

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

const queueSize = 64

// Dispatcher runs a fixed pool of workers. All updates of one conversation
// land on the same worker, in arrival order, so a conversation never sees
// two turns at once; a slow delivery only holds up the conversations that
// share its worker.
type Dispatcher struct {
	handler Handler
	workers int
	log     *slog.Logger
}

func NewDispatcher(h Handler, workers int, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{handler: h, workers: workers, log: log.With("component", "dispatcher")}
}

// Run consumes updates until the channel closes or ctx is done, then waits
// for turns already queued to finish. Turns run with ctx's values but not
// its cancellation, so a delivery in flight at shutdown completes.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan Update) {
	turnCtx := context.WithoutCancel(ctx)

	queues := make([]chan Update, d.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan Update, queueSize)
		wg.Add(1)
		go func(q <-chan Update) {
			defer wg.Done()
			for u := range q {
				d.turn(turnCtx, u)
			}
		}(queues[i])
	}

	d.log.Info("dispatching updates", "workers", d.workers)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case u, ok := <-updates:
			if !ok {
				break loop
			}
			select {
			case queues[d.shard(u.ConversationID)] <- u:
			case <-ctx.Done():
				break loop
			}
		}
	}

	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	d.log.Info("dispatcher stopped")
}

func (d *Dispatcher) shard(id int64) int {
	return int(uint64(id) % uint64(d.workers))
}

// turn handles one update. Neither an error nor a panic escapes it.
func (d *Dispatcher) turn(ctx context.Context, u Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while handling update",
				"conv", u.ConversationID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := d.handler.Handle(ctx, u); err != nil {
		d.log.Error("update not handled", "conv", u.ConversationID, "err", err.Error())
	}
}
