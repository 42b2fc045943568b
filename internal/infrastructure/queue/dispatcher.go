package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/api/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 64
)

// ErrStopped is returned by Submit once the dispatcher has been stopped.
var ErrStopped = errors.New("dispatcher stopped")

type task struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// Dispatcher runs jobs on a fixed set of workers using consistent hashing on
// a key (the user id), so jobs for the same user execute one at a time while
// the total number of concurrent jobs stays bounded by the worker count.
type Dispatcher struct {
	workers []chan task
	stopped chan struct{}
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan task, numWorkers),
		stopped: make(chan struct{}),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan task, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
	go func() {
		<-ctx.Done()
		close(d.stopped)
	}()
}

// Submit queues job on the worker responsible for key and waits for its
// result. It returns ctx.Err() if ctx ends first; a job that already started
// keeps running to completion.
func (d *Dispatcher) Submit(ctx context.Context, key string, job func(ctx context.Context) error) error {
	idx := d.shardIndex(key)
	t := task{ctx: ctx, run: job, done: make(chan error, 1)}

	select {
	case d.workers[idx] <- t:
		metrics.InferenceQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}
}

// Workers returns the number of workers.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan task) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ch:
			metrics.InferenceQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			// Nobody is waiting for a job whose caller already left.
			if err := t.ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			start := time.Now()
			err := d.execute(t)
			result := "ok"
			if err != nil {
				result = "error"
				d.log.Debug().Err(err).Int("worker_id", id).Msg("inference job failed")
			}
			metrics.InferenceDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
			t.done <- err
		}
	}
}

func (d *Dispatcher) execute(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("inference job panicked")
			err = fmt.Errorf("inference job panicked: %v", r)
		}
	}()
	return t.run(t.ctx)
}
