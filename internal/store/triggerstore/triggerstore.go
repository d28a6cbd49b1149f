// Package triggerstore is the durable backend for persistent triggers.
// Transient triggers never touch it; only persistent ones must survive a
// process restart.
package triggerstore

import (
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tiger/tiered-workflow-runtime/internal/engine/trigger"
)

const triggerPrefix = "trigger/"

// Badger stores persistent triggers in the embedded database.
type Badger struct {
	db *badger.DB
}

// NewBadger wraps an open database. The caller owns the database lifecycle.
func NewBadger(db *badger.DB) (*Badger, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is required")
	}
	return &Badger{db: db}, nil
}

// Put stores one queued trigger.
func (b *Badger) Put(t trigger.Trigger) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("store trigger: %w", err)
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trigger %s: %w", t.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(triggerPrefix+t.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("store trigger %s: %w", t.ID, err)
	}
	return nil
}

// Delete removes a consumed trigger. Deleting an absent id is a no-op.
func (b *Badger) Delete(id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(triggerPrefix + strings.TrimSpace(id)))
	})
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", id, err)
	}
	return nil
}

// List returns every queued trigger.
func (b *Badger) List() ([]trigger.Trigger, error) {
	var out []trigger.Trigger
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(triggerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(triggerPrefix)); it.Valid(); it.Next() {
			var t trigger.Trigger
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return out, nil
}
