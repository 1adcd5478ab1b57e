package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// TxLog is the local submission journal: every transaction this wallet
// broadcasts is recorded under its hash, so `tx query` can answer "did I
// already send this" before the node has confirmed anything. Keyed by the
// canonical hash, which is recomputable from the plaintext tx alone.
type TxLog struct {
	db *badger.DB
}

// TxLogEntry is one journaled submission.
type TxLogEntry struct {
	Hash        string    `json:"hash"`
	Status      string    `json:"status"`
	ChainID     string    `json:"chain_id"`
	Nonce       uint64    `json:"nonce"`
	From        string    `json:"from"`
	SubmittedAt time.Time `json:"submitted_at"`
}

var ErrTxNotRecorded = errors.New("transaction not found in local journal")

// OpenTxLog opens (or creates) the journal database under dir.
func OpenTxLog(dir string) (*TxLog, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction journal: %w", err)
	}
	return &TxLog{db: db}, nil
}

func (l *TxLog) Close() error {
	return l.db.Close()
}

// Record journals one submission. Re-recording the same hash overwrites the
// entry, which is what a retry after a retryable failure wants.
func (l *TxLog) Record(entry TxLogEntry) error {
	if entry.Hash == "" {
		return fmt.Errorf("journal entry requires a hash")
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entry.Hash), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// Get looks up one submission by hash.
func (l *TxLog) Get(hash string) (*TxLogEntry, error) {
	var entry TxLogEntry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotRecorded, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entry: %w", err)
	}
	return &entry, nil
}

// List returns every journaled submission, most recent first.
func (l *TxLog) List() ([]TxLogEntry, error) {
	var entries []TxLogEntry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry TxLogEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SubmittedAt.After(entries[j].SubmittedAt)
	})
	return entries, nil
}
