// Package memory keeps the long-term facts the assistant knows about the user
// and extracts new ones from finished turns in the background.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/metrics"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

const (
	contextHeader     = "LONG TERM MEMORY (Facts about the user):\n"
	defaultQueueSize  = 32
	extractionTimeout = 60 * time.Second
)

// Options tunes a Store. Zero values pick defaults.
type Options struct {
	QueueSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Store is the process-wide fact set. Reads are served from memory and every
// mutation is mirrored to the backend before it becomes visible.
//
// Extraction snapshots the existing facts before calling the model, so a
// Delete that lands while a generation is in flight can be undone when the
// model re-proposes the same text. Two processes sharing one backend are last
// write wins.
type Store struct {
	backend Backend
	gen     ai.Generator
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	facts  []memoryModel.Fact
	lastID int64

	queueMu sync.RWMutex
	closed  bool
	jobs    chan []chat.Message
	running atomic.Bool
	done    chan struct{}
}

// NewStore loads the current fact set from backend.
func NewStore(ctx context.Context, backend Backend, gen ai.Generator, opts Options) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("memory backend is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("memory generator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	facts, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}

	s := &Store{
		backend: backend,
		gen:     gen,
		logger:  logger.Named("memory"),
		metrics: opts.Metrics,
		now:     time.Now,
		facts:   facts,
		lastID:  highestNumericID(facts),
		jobs:    make(chan []chat.Message, size),
		done:    make(chan struct{}),
	}
	s.metrics.SetFacts(len(facts))
	s.logger.Info("memories loaded", zap.Int("facts", len(facts)))
	return s, nil
}

// GetContext renders every fact in insertion order under a fixed header, or
// returns "" when nothing is stored.
func (s *Store) GetContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, f := range s.facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f.Text)
	}
	return b.String()
}

// GetAll returns a copy of the stored facts.
func (s *Store) GetAll() []memoryModel.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]memoryModel.Fact(nil), s.facts...)
}

// Delete removes every fact with id in one write; older files may hold
// several facts stamped with the same id. It reports false without touching
// the backend when no such fact exists. A failed write leaves the set
// unchanged.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]memoryModel.Fact, 0, len(s.facts))
	for _, f := range s.facts {
		if f.ID != id {
			next = append(next, f)
		}
	}
	removed := len(s.facts) - len(next)
	if removed == 0 {
		return false, nil
	}

	if err := s.backend.Save(ctx, next); err != nil {
		return false, fmt.Errorf("persist memories: %w", err)
	}
	s.facts = next
	s.metrics.SetFacts(len(next))
	s.logger.Info("memory deleted", zap.String("id", id), zap.Int("removed", removed))
	return true, nil
}

// appendFacts adds every candidate whose text is not stored yet and persists
// the batch once.
func (s *Store) appendFacts(ctx context.Context, candidates []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.facts)+len(candidates))
	for _, f := range s.facts {
		seen[f.Text] = struct{}{}
	}

	next := append(make([]memoryModel.Fact, 0, len(s.facts)+len(candidates)), s.facts...)
	lastID := s.lastID
	for _, c := range candidates {
		text := strings.TrimSpace(c)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		now := s.now()
		id := now.UnixMilli()
		if id <= lastID {
			id = lastID + 1
		}
		lastID = id
		next = append(next, memoryModel.Fact{
			ID:        strconv.FormatInt(id, 10),
			Text:      text,
			CreatedAt: now.UTC().Format(time.RFC3339),
		})
	}

	added := len(next) - len(s.facts)
	if added == 0 {
		return 0, nil
	}
	if err := s.backend.Save(ctx, next); err != nil {
		return 0, fmt.Errorf("persist memories: %w", err)
	}
	s.facts = next
	s.lastID = lastID
	s.metrics.SetFacts(len(next))
	return added, nil
}

func highestNumericID(facts []memoryModel.Fact) int64 {
	var highest int64
	for _, f := range facts {
		if n, err := strconv.ParseInt(f.ID, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}
