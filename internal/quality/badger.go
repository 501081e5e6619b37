// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Key prefixes for BadgerDB storage
const (
	eventKeyPrefix      = "evt:"
	impressionKeyPrefix = "imp:"
)

// DefaultGCRatio is the value log discard ratio used by RunGC.
const DefaultGCRatio = 0.5

// BadgerStore is a durable append-only event log. Events are keyed by
// timestamp so Scan reads them back in time order.
type BadgerStore struct {
	db         *badger.DB
	gcInterval time.Duration
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("quality: store closed")

// OpenBadgerStore opens (or creates) a store at path. An empty path keeps
// the data in memory.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func OpenBadgerStore(path string, gcInterval time.Duration, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logger = logger.With().Str("component", "quality.badger").Logger()
	logger.Info().Str("path", path).Bool("in_memory", path == "").Msg("event store opened")

	return &BadgerStore{db: db, gcInterval: gcInterval, logger: logger}, nil
}

func eventKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", eventKeyPrefix, unixNano(e.Time()), e.ID()))
}

func seekKey(since time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventKeyPrefix, unixNano(since)))
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	if n := t.UnixNano(); n > 0 {
		return n
	}
	return 0
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// WriteBatch implements Sink.
func (s *BadgerStore) WriteBatch(_ context.Context, events []Event) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range events {
		e := &events[i]
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		key := eventKey(e)
		if err := wb.Set(key, data); err != nil {
			return fmt.Errorf("set event: %w", err)
		}
		if e.Recommendation != nil {
			idx := []byte(impressionKeyPrefix + impressionKey(e.Recommendation.RecommendationID, e.Recommendation.ContentID))
			if err := wb.Set(idx, key); err != nil {
				return fmt.Errorf("set impression index: %w", err)
			}
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}

// Recommendation implements Reader.
func (s *BadgerStore) Recommendation(_ context.Context, recommendationID string, contentID int64) (*RecommendationEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var e Event
	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(impressionKeyPrefix + impressionKey(recommendationID, contentID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUnknownRecommendation
		}
		if err != nil {
			return fmt.Errorf("get impression index: %w", err)
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read impression index: %w", err)
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUnknownRecommendation
		}
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return nil, err
	}
	if e.Recommendation == nil {
		return nil, ErrUnknownRecommendation
	}
	return e.Recommendation, nil
}

// Scan implements Reader.
func (s *BadgerStore) Scan(ctx context.Context, since time.Time, fn func(*Event) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(seekKey(since)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode event %s: %w", it.Item().Key(), err)
			}
			if err := fn(&e); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (s *BadgerStore) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(DefaultGCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Serve runs periodic value log GC until ctx is canceled. It implements
// suture.Service.
func (s *BadgerStore) Serve(ctx context.Context) error {
	if s.gcInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				if errors.Is(err, ErrStoreClosed) {
					return err
				}
				s.logger.Warn().Err(err).Msg("event store GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *BadgerStore) String() string { return "event-store-gc" }

// Close implements Sink.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
