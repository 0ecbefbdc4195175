// Package journal persists publish-task progress in a local badger store,
// so an interrupted publish resumes after a process restart.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"

	"github.com/sealfeed/sealfeed/pkg/publish"
)

var log *logrus.Logger

// StoreConfig configures the on-disk journal.
type StoreConfig struct {
	// Path is the badger directory. Created if missing.
	Path string

	// MinimumFreeSpace in GB. Opening fails below this level; a journal
	// that cannot write its checkpoints silently breaks resume.
	MinimumFreeSpace int

	Logger *logrus.Logger
}

// Store is a badger-backed publish.Journal.
type Store struct {
	config   StoreConfig
	badgerDB *badger.DB
}

// NewStore opens or creates the journal at config.Path.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if err := config.check(); err != nil {
		return nil, fmt.Errorf("error checking config for journal store: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening journal store: %w", err)
	}

	return &Store{
		config:   config,
		badgerDB: db,
	}, nil
}

func (sc *StoreConfig) check() error {
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	if err := os.MkdirAll(sc.Path, 0o755); err != nil {
		return fmt.Errorf("cannot create journal path: %w", err)
	}

	usage, err := disk.Usage(sc.Path)
	if err != nil {
		return fmt.Errorf("cannot read disk usage: %w", err)
	}

	freeGB := usage.Free / (1024 * 1024 * 1024)
	log.WithFields(logrus.Fields{
		"Path":       sc.Path,
		"Total (GB)": usage.Total / (1024 * 1024 * 1024),
		"Free (GB)":  freeGB,
	}).Info("Journal disk usage")

	if int(freeGB) < sc.MinimumFreeSpace {
		return errors.New("not enough space available on disk")
	}
	return nil
}

// Load returns the recorded state for a task, or (nil, nil) when unknown.
func (s *Store) Load(ctx context.Context, taskID string) (*publish.TaskState, error) {
	var state publish.TaskState
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(taskID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: load task %q: %w", taskID, err)
	}
	return &state, nil
}

// Save overwrites the recorded state for a task.
func (s *Store) Save(ctx context.Context, taskID string, state publish.TaskState) error {
	val, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("journal: encode task %q: %w", taskID, err)
	}
	err = s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(taskKey(taskID), val)
	})
	if err != nil {
		return fmt.Errorf("journal: save task %q: %w", taskID, err)
	}
	return nil
}

// Delete forgets a task. Deleting an unknown task is not an error.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(taskKey(taskID))
	})
	if err != nil {
		return fmt.Errorf("journal: delete task %q: %w", taskID, err)
	}
	return nil
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	return s.badgerDB.Close()
}

func taskKey(taskID string) []byte {
	return append([]byte("task/"), taskID...)
}

var _ publish.Journal = (*Store)(nil)
