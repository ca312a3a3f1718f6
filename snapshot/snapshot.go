// Package snapshot persists planned Q-tables in BadgerDB so later runs can inspect them or
// warm-start from them.
//
// Key layout:
//
//	latest                                   -> run ID of the most recent save
//	run/<runID>                              -> number of entries saved (uint64)
//	q/<runID>/<agent>\x00<state>\x00<joint>  -> Q-value (float64 bits)
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"sgplan/game"
	"sgplan/qsource"
)

var ErrNoSnapshot = errors.New("no snapshot saved")

type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory, for tests.
	InMemory   bool
	SyncWrites bool
	// Verbose forwards BadgerDB's own logging to the global logger.
	Verbose bool
}

type Store struct {
	db *badger.DB
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Info().Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent snapshots")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create snapshot directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Verbose {
		opts = opts.WithLogger(badgerLogger{})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(runID string) []byte {
	return []byte("run/" + runID)
}

func qPrefix(runID string) []byte {
	return []byte("q/" + runID + "/")
}

func qKey(runID, agent string, sk game.StateKey, jk game.JointKey) []byte {
	var b strings.Builder
	b.Write(qPrefix(runID))
	b.WriteString(agent)
	b.WriteByte(0)
	b.WriteString(string(sk))
	b.WriteByte(0)
	b.WriteString(string(jk))
	return []byte(b.String())
}

func encodeFloat(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeFloat(buf []byte) (float64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("corrupt Q-value of %d bytes", len(buf))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
}

// Save writes every entry of qs under runID and marks it as the latest run.
func (s *Store) Save(runID string, qs *qsource.Map) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	count := uint64(0)
	for _, name := range qs.Names() {
		q, err := qs.Agent(name)
		if err != nil {
			return err
		}
		var setErr error
		q.Range(func(sk game.StateKey, jk game.JointKey, e qsource.Entry) bool {
			setErr = wb.Set(qKey(runID, name, sk, jk), encodeFloat(e.Value()))
			count++
			return setErr == nil
		})
		if setErr != nil {
			return fmt.Errorf("save Q-values of %q: %w", name, setErr)
		}
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, count)
	if err := wb.Set(runKey(runID), buf); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := wb.Set([]byte("latest"), []byte(runID)); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush run %s: %w", runID, err)
	}

	log.Info().Str("run", runID).Uint64("entries", count).Msg("Saved Q snapshot")
	return nil
}

// Latest returns the run ID of the most recent save.
func (s *Store) Latest() (string, error) {
	var runID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("latest"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			runID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNoSnapshot
	}
	return runID, err
}

// Entries returns how many Q-values were saved under runID.
func (s *Store) Entries(runID string) (int, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt run record of %d bytes", len(val))
			}
			n = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, fmt.Errorf("%w: run %s", ErrNoSnapshot, runID)
	}
	return int(n), err
}

// Lookup reads one saved Q-value. The boolean is false when the run has no such entry.
func (s *Store) Lookup(runID, agent string, sk game.StateKey, jk game.JointKey) (float64, bool, error) {
	var v float64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(qKey(runID, agent, sk, jk))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err = decodeFloat(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Init warm-starts Q-values from a saved run, using fallback for entries the run lacks.
// It fails with ErrNoSnapshot when runID was never saved or has been deleted.
func (s *Store) Init(runID string, hasher game.Hasher, fallback qsource.Init) (qsource.Init, error) {
	if _, err := s.Entries(runID); err != nil {
		return nil, err
	}
	if hasher == nil {
		hasher = game.DefaultHasher{}
	}
	if fallback == nil {
		fallback = qsource.ConstantInit(0)
	}
	return func(agent string, st game.State, ja game.JointAction) float64 {
		v, ok, err := s.Lookup(runID, agent, hasher.Key(st), ja.Key())
		if err != nil {
			log.Warn().Err(err).Str("run", runID).Str("agent", agent).Msg("Snapshot lookup failed, using fallback")
		}
		if !ok {
			return fallback(agent, st, ja)
		}
		return v
	}, nil
}

// Delete drops every entry of runID. The run record and, if it points at runID, the latest
// marker go in one transaction, so Latest never names a deleted run.
func (s *Store) Delete(runID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(runID)); err != nil {
			return err
		}
		if err := txn.Delete(runKey(runID)); err != nil {
			return err
		}
		item, err := txn.Get([]byte("latest"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		latest, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(latest) == runID {
			return txn.Delete([]byte("latest"))
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: run %s", ErrNoSnapshot, runID)
	}
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if err := s.db.DropPrefix(qPrefix(runID)); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	log.Info().Str("run", runID).Msg("Deleted Q snapshot")
	return nil
}
