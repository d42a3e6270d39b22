// Package memstore is an in-process implementation of the replicated store.
//
// One Store holds the document; every client gets its own Conn so that
// disconnect hooks can be fired per connection. The relay server wraps one
// Conn per socket, tests and the local simulator use Conns directly.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"outbreak/internal/doc"
	"outbreak/internal/store"
)

// Persister receives the committed value of every top-level document touched
// by an update. Keys are the first two path segments (e.g. "sessions/abc").
type Persister interface {
	Save(ctx context.Context, key string, value any) error
	LoadAll(ctx context.Context) (map[string]any, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersister mirrors committed documents to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the shared document.
type Store struct {
	mu        sync.Mutex
	root      doc.Tree
	feeds     map[*store.Feed]struct{}
	now       func() time.Time
	persister Persister
	logger    *slog.Logger
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		root:   make(doc.Tree),
		feeds:  make(map[*store.Feed]struct{}),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the document with what the persister holds.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	docs, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = make(doc.Tree)
	for key, value := range docs {
		if err := doc.Set(s.root, key, value); err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
	}
	s.logger.Info("documents loaded", "count", len(docs))
	return nil
}

// Connect opens a connection for clientID.
func (s *Store) Connect(clientID string) *Conn {
	return &Conn{store: s, id: clientID}
}

// update commits a patch and notifies overlapping subscribers.
func (s *Store) update(ctx context.Context, patch doc.Patch) error {
	resolve := func(any) any { return float64(s.now().UnixMilli()) }
	norm, err := patch.Normalized(resolve)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := doc.Apply(s.root, norm); err != nil {
		return err
	}

	for feed := range s.feeds {
		for path := range norm {
			if doc.Overlaps(feed.Path(), path) {
				v, _ := doc.Get(s.root, feed.Path())
				feed.Publish(doc.Clone(v))
				break
			}
		}
	}

	s.persist(ctx, norm)
	return nil
}

// persist mirrors touched top-level documents. Failures are logged: the
// in-memory tree stays authoritative.
func (s *Store) persist(ctx context.Context, norm doc.Patch) {
	if s.persister == nil {
		return
	}
	keys := make(map[string]struct{})
	for path := range norm {
		parts := doc.Split(path)
		if len(parts) > 2 {
			parts = parts[:2]
		}
		if len(parts) == 1 {
			// A whole collection was replaced; mirror each child.
			if m, ok := s.root[parts[0]].(map[string]any); ok {
				for child := range m {
					keys[doc.Join(parts[0], child)] = struct{}{}
				}
			}
			continue
		}
		keys[doc.Join(parts...)] = struct{}{}
	}
	for key := range keys {
		v, _ := doc.Get(s.root, key)
		if err := s.persister.Save(ctx, key, doc.Clone(v)); err != nil {
			s.logger.Warn("failed to persist document", "key", key, "error", err)
		}
	}
}

func (s *Store) get(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := doc.Get(s.root, path)
	return doc.Clone(v)
}

func (s *Store) observe(ctx context.Context, path string) *store.Subscription {
	feed := store.NewFeed(doc.Join(path))

	s.mu.Lock()
	s.feeds[feed] = struct{}{}
	v, _ := doc.Get(s.root, path)
	feed.Publish(doc.Clone(v))
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.feeds, feed)
			s.mu.Unlock()
		})
	}
	sub := feed.Subscription(cancel)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-feed.Done():
		}
	}()
	return sub
}

// SubscriberCount returns the number of open subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}
