// Package receiptlog is the append-only receipt store. Appends are
// idempotent per span: the runtime may deliver a receipt more than once,
// the log keeps exactly one record per span_id.
package receiptlog

import (
	"encoding/json"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

// Log is the receipt persistence seam consumed by the dispatcher.
type Log interface {
	// Append stores one receipt. A second receipt for an already stored
	// span_id is dropped silently; at-least-once delivery upstream makes
	// duplicates normal, not exceptional.
	Append(r runtimeclass.Receipt) error
	// QueryRecent returns up to n receipts, newest first.
	QueryRecent(n int) ([]runtimeclass.Receipt, error)
}

// Memory is the in-process log used by tests and ephemeral runs.
type Memory struct {
	mu       sync.Mutex
	receipts []runtimeclass.Receipt
	spans    map[string]struct{}
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{spans: map[string]struct{}{}}
}

// Append stores one receipt, deduplicating by span_id.
func (m *Memory) Append(r runtimeclass.Receipt) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.spans[r.SpanID]; seen {
		return nil
	}
	m.spans[r.SpanID] = struct{}{}
	m.receipts = append(m.receipts, r)
	return nil
}

// QueryRecent returns up to n receipts, newest first.
func (m *Memory) QueryRecent(n int) ([]runtimeclass.Receipt, error) {
	if n < 1 {
		return nil, fmt.Errorf("query count must be >= 1, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.receipts) {
		n = len(m.receipts)
	}
	out := make([]runtimeclass.Receipt, 0, n)
	for i := len(m.receipts) - 1; i >= len(m.receipts)-n; i-- {
		out = append(out, m.receipts[i])
	}
	return out, nil
}

// Len returns the number of stored receipts.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts)
}

const (
	receiptPrefix = "receipt/"
	spanPrefix    = "receiptspan/"
	seqKey        = "receiptseq"
)

// Badger is the durable receipt log. Receipts are keyed by a monotonically
// increasing sequence so reverse iteration yields newest-first order; a
// span index enforces the per-span dedup rule across restarts.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadger wraps an open database. The caller owns the database lifecycle.
func NewBadger(db *badger.DB) (*Badger, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is required")
	}
	seq, err := db.GetSequence([]byte(seqKey), 128)
	if err != nil {
		return nil, fmt.Errorf("open receipt sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

// Close releases the sequence allocator. The database itself stays open.
func (b *Badger) Close() error {
	return b.seq.Release()
}

// Append stores one receipt, deduplicating by span_id.
func (b *Badger) Append(r runtimeclass.Receipt) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	spanKey := []byte(spanPrefix + r.SpanID)

	duplicate := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(spanKey)
		if err == nil {
			duplicate = true
			return nil
		}
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("check span index: %w", err)
	}
	if duplicate {
		return nil
	}

	seq, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("allocate receipt sequence: %w", err)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%020d", receiptPrefix, seq))

	err = b.db.Update(func(txn *badger.Txn) error {
		// Re-check inside the write txn; two racing appends for the same
		// span must still collapse to one record.
		if _, err := txn.Get(spanKey); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set(spanKey, []byte(r.ID))
	})
	if err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	return nil
}

// QueryRecent returns up to n receipts, newest first.
func (b *Badger) QueryRecent(n int) ([]runtimeclass.Receipt, error) {
	if n < 1 {
		return nil, fmt.Errorf("query count must be >= 1, got %d", n)
	}
	out := make([]runtimeclass.Receipt, 0, n)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(receiptPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last possible key in the
		// prefix range.
		seek := append([]byte(receiptPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(out) < n; it.Next() {
			var r runtimeclass.Receipt
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	return out, nil
}
