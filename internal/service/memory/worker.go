package memory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/metrics"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

var errWorkerRunning = errors.New("memory extraction worker already running")

// ExtractMemories schedules an extraction over snippet and returns at once.
// It reports whether the job was queued; a full queue or a closed store drops
// the job.
func (s *Store) ExtractMemories(snippet []chat.Message) bool {
	job := chat.Tail(snippet, snippetWindow)
	if len(job) == 0 {
		return false
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		s.metrics.RecordExtraction(metrics.ExtractionDropped)
		s.logger.Warn("extraction dropped, store closed")
		return false
	}

	select {
	case s.jobs <- job:
		return true
	default:
		s.metrics.RecordExtraction(metrics.ExtractionDropped)
		s.logger.Warn("extraction dropped, queue full", zap.Int("capacity", cap(s.jobs)))
		return false
	}
}

// Run drains the extraction queue until ctx is done or Close is called. Jobs
// already queued when Close is called are still processed. When ctx ends
// first the store stops accepting jobs and the ones left in the queue are
// dropped.
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errWorkerRunning
	}
	defer close(s.done)

	s.logger.Debug("extraction worker started")
	for {
		select {
		case <-ctx.Done():
			dropped := s.stopAccepting()
			s.logger.Debug("extraction worker stopped", zap.Error(ctx.Err()), zap.Int("dropped", dropped))
			return nil
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("extraction worker drained")
				return nil
			}
			s.runJob(ctx, job)
		}
	}
}

// Close stops accepting jobs and waits for a running worker to drain.
func (s *Store) Close() {
	s.closeQueue()
	if s.running.Load() {
		<-s.done
	}
}

func (s *Store) closeQueue() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
}

// stopAccepting closes the queue and discards what is left in it.
func (s *Store) stopAccepting() int {
	s.closeQueue()
	dropped := 0
	for range s.jobs {
		dropped++
		s.metrics.RecordExtraction(metrics.ExtractionDropped)
	}
	if dropped > 0 {
		s.logger.Warn("extraction dropped, worker stopped", zap.Int("jobs", dropped))
	}
	return dropped
}

// runJob is the failure boundary of background extraction: nothing it does
// reaches the request that scheduled it.
func (s *Store) runJob(ctx context.Context, job []chat.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordExtraction(metrics.ExtractionFailed)
			s.logger.Error("memory extraction panicked", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	if _, err := s.Extract(ctx, job); err != nil {
		s.logger.Warn("memory extraction failed", zap.Error(err))
	}
}
