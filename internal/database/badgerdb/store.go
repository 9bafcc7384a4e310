// Package badgerdb stores the class graph in an embedded Badger database.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/kozaktomas/image-query/internal/database"
)

// Store is a class graph kept as posting keys, one per (class, image) link.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

type openOptions struct {
	inMemory bool
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*openOptions)

// WithInMemory keeps the database in memory; the path is ignored.
func WithInMemory() Option {
	return func(o *openOptions) { o.inMemory = true }
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open opens the store at path, creating the directory if needed.
func Open(path string, opts ...Option) (*Store, error) {
	o := openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var bopts badger.Options
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		bopts = badger.DefaultOptions(path)
	}
	bopts.Logger = &badgerLoggerAdapter{logger: o.logger}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, logger: o.logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// postings returns the image IDs linked to class, in key order.
func postings(ctx context.Context, txn *badger.Txn, class string) ([]string, error) {
	prefix := makeClassPrefix(class)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, imageID, err := parsePostingKey(it.Item().Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, imageID)
	}
	return ids, nil
}

// ResolveCandidates returns the images linked to every one of classes. The
// shortest posting list drives the intersection.
func (s *Store) ResolveCandidates(ctx context.Context, classes []string) ([]string, error) {
	classes = database.UniqueClasses(classes)
	if len(classes) == 0 {
		return nil, nil
	}

	var result []string
	err := s.db.View(func(txn *badger.Txn) error {
		lists := make([][]string, 0, len(classes))
		for _, c := range classes {
			ids, err := postings(ctx, txn, c)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			lists = append(lists, ids)
		}
		slices.SortStableFunc(lists, func(a, b []string) int { return len(a) - len(b) })

		others := make([]map[string]struct{}, 0, len(lists)-1)
		for _, l := range lists[1:] {
			set := make(map[string]struct{}, len(l))
			for _, id := range l {
				set[id] = struct{}{}
			}
			others = append(others, set)
		}

	next:
		for _, id := range lists[0] {
			for _, set := range others {
				if _, ok := set[id]; !ok {
					continue next
				}
			}
			result = append(result, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve candidates: %w", err)
	}
	s.logger.Debug("candidates resolved", "classes", classes, "candidates", len(result))
	return result, nil
}

func readClasses(txn *badger.Txn, imageID string) ([]string, error) {
	item, err := txn.Get(makeImageKey(imageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var classes []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &classes)
	})
	return classes, err
}

// ClassesOf returns the classes linked to an image, sorted by name
func (s *Store) ClassesOf(ctx context.Context, imageID string) ([]string, error) {
	var classes []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		classes, err = readClasses(txn, imageID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read classes of %s: %w", imageID, err)
	}
	slices.Sort(classes)
	return classes, nil
}

// Stats returns image, class and link counts
func (s *Store) Stats(ctx context.Context) (database.GraphStats, error) {
	var stats database.GraphStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		classes := make(map[string]struct{})
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			switch {
			case len(key) > len(imagePrefix) && string(key[:len(imagePrefix)]) == imagePrefix:
				stats.Images++
			case len(key) > len(classPrefix) && string(key[:len(classPrefix)]) == classPrefix:
				class, _, err := parsePostingKey(key)
				if err != nil {
					return err
				}
				classes[class] = struct{}{}
				stats.Links++
			}
		}
		stats.Classes = len(classes)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("graph stats: %w", err)
	}
	return stats, nil
}

// SaveImageClasses replaces the classes linked to an image
func (s *Store) SaveImageClasses(ctx context.Context, imageID string, classes []string) error {
	if imageID == "" {
		return errors.New("image ID cannot be empty")
	}
	classes = database.UniqueClasses(classes)
	value, err := json.Marshal(classes)
	if err != nil {
		return fmt.Errorf("marshal classes: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := readClasses(txn, imageID)
		if err != nil {
			return err
		}
		for _, c := range old {
			if err := txn.Delete(makePostingKey(c, imageID)); err != nil {
				return err
			}
		}
		for _, c := range classes {
			if err := txn.Set(makePostingKey(c, imageID), nil); err != nil {
				return err
			}
		}
		return txn.Set(makeImageKey(imageID), value)
	})
	if err != nil {
		return fmt.Errorf("save classes of %s: %w", imageID, err)
	}
	return nil
}
