package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultBufferCapacity is the number of queued entries before the
	// oldest are dropped.
	DefaultBufferCapacity = 1000
	// DefaultBatchSize is the number of entries delivered per batch.
	DefaultBatchSize = 50
	// DefaultPeriod is the longest a partial batch waits before delivery.
	DefaultPeriod = 2 * time.Second
	// DefaultMaxRetries is how many times a failed batch is retried
	// before it is dropped.
	DefaultMaxRetries = 8
)

// BufferConfig controls queueing and batching in a Buffer. Zero values
// take the package defaults.
type BufferConfig struct {
	Capacity   int
	BatchSize  int
	Period     time.Duration
	MaxRetries int
	// RetryInterval is the first backoff after a failed batch. It
	// defaults to Period and doubles up to ten periods.
	RetryInterval time.Duration
	Clock         clock.Clock
	// ErrorOutput receives delivery failures. Defaults to os.Stderr.
	ErrorOutput io.Writer
}

func (c BufferConfig) withDefaults() BufferConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultBufferCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = c.Period
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.ErrorOutput == nil {
		c.ErrorOutput = os.Stderr
	}
	return c
}

// Buffer queues entries and delivers them in batches from a single worker
// goroutine, either when BatchSize entries are pending or every Period.
// When the queue is full the oldest entries are dropped.
//
// Batch transporters see at most one WriteBatch call at a time. A failed
// batch is retried with exponential backoff and dropped after MaxRetries.
type Buffer struct {
	cfg          BufferConfig
	entries      chan Entry
	transporters []Transporter
	ticker       *clock.Ticker
	dropped      int64
	closed       int32
	done         chan struct{}
	wg           sync.WaitGroup

	// retryCtx is cancelled by Close so a batch in backoff stops waiting.
	retryCtx    context.Context
	cancelRetry context.CancelFunc

	// pending is handed from the worker to Close on shutdown.
	pending []Entry
}

// NewBuffer creates a buffer delivering to all provided transporters.
func NewBuffer(cfg BufferConfig, transporters ...Transporter) *Buffer {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Buffer{
		cfg:          cfg,
		entries:      make(chan Entry, cfg.Capacity),
		transporters: transporters,
		ticker:       cfg.Clock.Ticker(cfg.Period),
		done:         make(chan struct{}),
		retryCtx:     ctx,
		cancelRetry:  cancel,
	}

	b.wg.Add(1)
	go b.worker()

	return b
}

// Send queues an entry for async delivery.
// If the buffer is full, the oldest entry is dropped.
// Safe to call from multiple goroutines.
func (b *Buffer) Send(entry Entry) {
	if atomic.LoadInt32(&b.closed) == 1 {
		return
	}

	select {
	case b.entries <- entry:
	default:
		select {
		case <-b.entries:
			atomic.AddInt64(&b.dropped, 1)
		default:
		}
		select {
		case b.entries <- entry:
		default:
			atomic.AddInt64(&b.dropped, 1)
		}
	}
}

// DroppedCount returns the number of entries dropped, either because the
// queue overflowed or because their batch exhausted its retries.
func (b *Buffer) DroppedCount() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Close stops the worker, delivers what is still queued with a single
// attempt per batch, then closes every transporter. Close errors from the
// transporters are combined. Safe to call multiple times.
func (b *Buffer) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}

	b.cancelRetry()
	close(b.done)
	b.wg.Wait()

	remaining := b.pending
drain:
	for {
		select {
		case entry := <-b.entries:
			remaining = append(remaining, entry)
		default:
			break drain
		}
	}
	for len(remaining) > 0 {
		n := min(len(remaining), b.cfg.BatchSize)
		b.deliver(remaining[:n])
		remaining = remaining[n:]
	}

	var result *multierror.Error
	for _, t := range b.transporters {
		if err := t.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close transporter %q: %w", t.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

func (b *Buffer) worker() {
	defer b.wg.Done()
	defer b.ticker.Stop()

	batch := make([]Entry, 0, b.cfg.BatchSize)
	for {
		select {
		case entry := <-b.entries:
			batch = append(batch, entry)
			if len(batch) >= b.cfg.BatchSize {
				b.deliver(batch)
				batch = make([]Entry, 0, b.cfg.BatchSize)
			}
		case <-b.ticker.C:
			if len(batch) > 0 {
				b.deliver(batch)
				batch = make([]Entry, 0, b.cfg.BatchSize)
			}
		case <-b.done:
			b.pending = batch
			return
		}
	}
}

// deliver hands one batch to every transporter. Plain transporters get
// one Write per entry; failures there fall back to ErrorOutput.
func (b *Buffer) deliver(batch []Entry) {
	for _, t := range b.transporters {
		if bt, ok := t.(BatchTransporter); ok {
			b.deliverBatch(bt, batch)
			continue
		}
		for _, entry := range batch {
			if err := t.Write(entry); err != nil {
				fmt.Fprintf(b.cfg.ErrorOutput, "log transporter %q failed: %v\n", t.Name(), err)
			}
		}
	}
}

func (b *Buffer) deliverBatch(t BatchTransporter, batch []Entry) {
	var lastErr error
	operation := func() error {
		lastErr = t.WriteBatch(context.Background(), batch)
		return lastErr
	}
	notify := func(err error, next time.Duration) {
		fmt.Fprintf(b.cfg.ErrorOutput, "log transporter %q failed to deliver %d entries, retrying in %s: %v\n",
			t.Name(), len(batch), next, err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b.newBackOff(), uint64(b.cfg.MaxRetries)), b.retryCtx)
	err := backoff.RetryNotifyWithTimer(operation, policy, notify, &clockTimer{clock: b.cfg.Clock})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		atomic.AddInt64(&b.dropped, int64(len(batch)))
		fmt.Fprintf(b.cfg.ErrorOutput, "log transporter %q dropped %d entries: %v\n", t.Name(), len(batch), err)
	}
}

func (b *Buffer) newBackOff() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.RetryInterval
	eb.MaxInterval = 10 * b.cfg.Period
	eb.MaxElapsedTime = 0
	eb.Clock = b.cfg.Clock
	eb.Reset()
	return eb
}

// clockTimer drives backoff waits from the buffer's clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
