package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AsyncOptions tunes the batching of an AsyncStorage.
type AsyncOptions struct {
	// BufferSize is the number of queued records before Store falls back to a direct write.
	BufferSize int
	// BatchSize is the number of records written per StoreBatch call.
	BatchSize int
	// BatchTimeout is the longest a partial batch waits before it is written.
	BatchTimeout time.Duration
	// StorageTimeout bounds every StoreBatch call.
	StorageTimeout time.Duration
}

// AsyncStorage groups records from concurrent writers into batches written by
// a single worker. Store blocks until the batch holding the record is written
// and returns its result, so callers still see storage errors.
type AsyncStorage struct {
	next BatchStorage
	opts AsyncOptions

	mu     sync.RWMutex
	closed bool
	queue  chan queuedRecord
	wg     sync.WaitGroup
}

type queuedRecord struct {
	record Record
	result chan error
}

// NewAsyncStorage starts the batching worker. Call Close on shutdown to flush
// queued records.
func NewAsyncStorage(next BatchStorage, opts AsyncOptions) *AsyncStorage {
	if next == nil {
		panic("audit: batch storage cannot be nil")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	s := &AsyncStorage{
		next:  next,
		opts:  opts,
		queue: make(chan queuedRecord, opts.BufferSize),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Store queues the record and waits for its batch. When the queue is full the
// record is written directly.
func (s *AsyncStorage) Store(ctx context.Context, record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	q := queuedRecord{record: record, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStorageNotAvailable
	}
	select {
	case s.queue <- q:
		s.mu.RUnlock()
	default:
		s.mu.RUnlock()
		return s.next.StoreBatch(ctx, []Record{record})
	}

	select {
	case err := <-q.result:
		return err
	case <-ctx.Done():
		return timeoutErr(ctx.Err())
	}
}

// timeoutErr marks deadline errors with ErrStorageTimeout.
func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrStorageTimeout, err)
	}
	return err
}

func (s *AsyncStorage) StoreBatch(ctx context.Context, records []Record) error {
	return s.next.StoreBatch(ctx, records)
}

func (s *AsyncStorage) Query(ctx context.Context, criteria Criteria) ([]Record, error) {
	return s.next.Query(ctx, criteria)
}

func (s *AsyncStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	if counter, ok := s.next.(StorageCounter); ok {
		return counter.Count(ctx, criteria)
	}
	records, err := s.next.Query(ctx, criteria)
	return int64(len(records)), err
}

func (s *AsyncStorage) SupportsObjectChanges() bool { return supportsChanges(s.next) }

// Close stops accepting records, flushes the queue and waits for the worker.
// Queued records may be lost if ctx expires first.
func (s *AsyncStorage) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncStorage) worker() {
	defer s.wg.Done()

	batch := make([]Record, 0, s.opts.BatchSize)
	waiting := make([]chan error, 0, s.opts.BatchSize)
	ticker := time.NewTicker(s.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Detached from callers so one cancelled request does not fail the batch.
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StorageTimeout)
		err := timeoutErr(s.next.StoreBatch(ctx, batch))
		cancel()

		for _, ch := range waiting {
			ch <- err
		}
		clear(batch)
		batch = batch[:0]
		waiting = waiting[:0]
	}

	for {
		select {
		case q, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, q.record)
			waiting = append(waiting, q.result)
			if len(batch) >= s.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

var _ interface {
	BatchStorage
	StorageCounter
	ChangesetSupporter
} = (*AsyncStorage)(nil)
