package batching

import (
	"context"
	"sync"
	"time"

	"reduction.dev/ckptsink/clocks"
)

// BatchToken identifies the batch a timeout was scheduled for.
type BatchToken int64

// CurrentBatch seals whatever batch is open regardless of token.
var CurrentBatch BatchToken = BatchToken(-1)

type Params struct {
	MaxSize  int           // Number of items that make a batch full
	MaxDelay time.Duration // Max age of an open batch. Zero disables timeouts.
	Timer    clocks.Timer
}

// Batcher accumulates items until a batch is full or its delay expires. It
// never seals batches on its own: callers seal when Add reports a full batch
// or when a token arrives on TimedOut.
type Batcher[T any] struct {
	maxSize  int
	maxDelay time.Duration
	timer    clocks.Timer
	ctx      context.Context
	timedOut chan BatchToken

	mu    sync.Mutex // Guards batch and token
	batch []T
	token BatchToken
}

func New[T any](ctx context.Context, params Params) *Batcher[T] {
	if params.Timer == nil {
		params.Timer = &clocks.SystemTimer{}
	}
	if params.MaxSize < 1 {
		params.MaxSize = 1
	}

	return &Batcher[T]{
		maxSize:  params.MaxSize,
		maxDelay: params.MaxDelay,
		timer:    params.Timer,
		ctx:      ctx,
		timedOut: make(chan BatchToken),
		batch:    make([]T, 0, params.MaxSize),
	}
}

// Add appends an item to the open batch and reports whether the batch is full.
func (b *Batcher[T]) Add(item T) (full bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Start the delay timer with the first item of a batch
	if len(b.batch) == 0 && b.maxDelay > 0 {
		token := b.token
		b.timer.Set(b.maxDelay, func() {
			select {
			case b.timedOut <- token:
			case <-b.ctx.Done():
			}
		})
	}

	b.batch = append(b.batch, item)
	return len(b.batch) >= b.maxSize
}

func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batch)
}

// Items returns a copy of the open batch without sealing it.
func (b *Batcher[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]T(nil), b.batch...)
}

// Seal closes the open batch and returns its items. It returns nil when the
// batch is empty or when token refers to a batch that was already sealed.
func (b *Batcher[T]) Seal(token BatchToken) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.batch) == 0 || (token != CurrentBatch && token != b.token) {
		return nil
	}

	sealed := b.batch
	b.batch = make([]T, 0, b.maxSize)
	b.token++
	b.timer.Stop()
	return sealed
}

// TimedOut delivers the token of a batch whose delay expired. Nothing is sent
// after the batcher's context is done.
func (b *Batcher[T]) TimedOut() <-chan BatchToken {
	return b.timedOut
}
