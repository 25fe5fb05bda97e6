package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/botsapp/voicecall-go/pkg/transcript"
)

// ErrNotFound is returned when no transcript exists for a key.
var ErrNotFound = errors.New("store: transcript not found")

// keyPrefix namespaces transcript records in the database.
const keyPrefix = "transcript/"

// Record is one persisted call transcript: the raw fragment sequence plus
// call metadata. Fragments are stored rather than merged lines so the
// display form can always be rebuilt with the current merge rule.
type Record struct {
	ChatID    string                `json:"chat_id"`
	CallID    string                `json:"call_id,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	EndedAt   time.Time             `json:"ended_at"`
	Fragments []transcript.Fragment `json:"fragments"`
}

// Store persists call transcripts in BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Options configures the store.
type Options struct {
	// Dir is the directory for database files. Required unless InMemory.
	Dir string

	// InMemory runs the database without disk persistence. Used in tests.
	InMemory bool

	// Logger instance. Badger's own logger is silenced.
	Logger *slog.Logger
}

// Open opens (creating if needed) the transcript store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Options.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	return &Store{db: db, logger: opts.Logger}, nil
}

func recordKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// Save persists a transcript record under key.
func (s *Store) Save(key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("save transcript %q: %w", key, err)
	}

	s.logger.Debug("transcript saved", "key", key, "fragments", len(rec.Fragments))
	return nil
}

// Load reads the transcript record stored under key.
func (s *Store) Load(key string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load transcript %q: %w", key, err)
	}
	return rec, nil
}

// Lines loads the record under key and rebuilds its display lines with the
// same merge rule the live stream uses.
func (s *Store) Lines(key string) ([]transcript.Line, error) {
	rec, err := s.Load(key)
	if err != nil {
		return nil, err
	}
	return transcript.Rebuild(rec.Fragments), nil
}

// Keys lists all stored transcript keys.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Delete removes the record under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
